// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, storage, system
	Action   string // ユーザー向け対処方法
	Cause    error  // 原因エラー（レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodeNotAuthorized    = "NOT_AUTHORIZED"
	ErrCodeInvalidCursor    = "INVALID_CURSOR"
	ErrCodeCursorMismatch   = "CURSOR_MISMATCH"
	ErrCodeInvalidLimit     = "INVALID_LIMIT"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// IsCode はエラーチェーンに指定コードのAPIErrorが含まれるかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewNotAuthorizedError はアルバムが存在しないか所有者でない場合のエラーを生成する。
// 存在有無を漏らさないため、両者を区別しない。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "指定されたアルバムが見つかりません。",
		Category: "auth",
		Action:   "アルバムIDを確認してください。",
	}
}

// NewInvalidCursorError は不正なカーソルのエラーを生成する。
func NewInvalidCursorError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCursor,
		Message:  fmt.Sprintf("無効なカーソルです: %s", reason),
		Category: "validation",
		Action:   "カーソルを指定せずに先頭から取得し直してください。",
	}
}

// NewCursorMismatchError は別アルバムのカーソルが指定された場合のエラーを生成する。
func NewCursorMismatchError(albumID string) *APIError {
	return &APIError{
		Code:     ErrCodeCursorMismatch,
		Message:  fmt.Sprintf("カーソルはこのアルバムのものではありません: %s", albumID),
		Category: "validation",
		Action:   "同じアルバムの一覧で返されたカーソルを指定してください。",
	}
}

// NewInvalidLimitError は取得件数の指定が不正な場合のエラーを生成する。
func NewInvalidLimitError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLimit,
		Message:  fmt.Sprintf("無効な取得件数です: %s", raw),
		Category: "validation",
		Action:   "limitには1以上の整数を指定してください。",
	}
}

// NewStoreUnavailableError はバックエンドストアの一時的な障害を表すエラーを生成する。
// 操作全体は冪等なので、呼び出し側は同じ操作を再試行してよい。
func NewStoreUnavailableError(op string, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  fmt.Sprintf("ストレージへのアクセスに失敗しました (%s)", op),
		Category: "storage",
		Action:   "しばらく待ってから再度お試しください。",
		Cause:    cause,
	}
}
