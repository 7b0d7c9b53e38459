// Package cursor は一覧のページ位置を表す不透明なトークンを扱う。
//
// トークンはバージョン付きJSONをbase64url（パディングなし）で符号化したもの。
// 呼び出し側には不透明であり、保証するのは Encode/Decode の往復のみ。
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/photolib/internal/model"
)

// version は現在のトークン形式のバージョン。
const version = 1

// Position は一覧上の位置。このphoto_idを含まず、その後ろから再開する。
type Position struct {
	AlbumID    string
	UploadedAt int64
	PhotoID    string
}

// envelope はトークンのJSON表現。
type envelope struct {
	V int    `json:"v"`
	A string `json:"a"`
	T int64  `json:"t"`
	P string `json:"p"`
}

// Encode は位置をトークンに符号化する。
func Encode(pos Position) string {
	// フィールドはすべて文字列と整数なのでMarshalは失敗しない
	raw, _ := json.Marshal(envelope{V: version, A: pos.AlbumID, T: pos.UploadedAt, P: pos.PhotoID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode はトークンを位置に復号する。
// 形式が不正な場合はINVALID_CURSORのAPIErrorを返す。
func Decode(token string) (Position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Position{}, model.NewInvalidCursorError("base64の復号に失敗しました")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Position{}, model.NewInvalidCursorError("JSONの解析に失敗しました")
	}
	if env.V != version {
		return Position{}, model.NewInvalidCursorError(fmt.Sprintf("未対応のバージョンです: %d", env.V))
	}
	if env.A == "" || env.P == "" {
		return Position{}, model.NewInvalidCursorError("必須フィールドがありません")
	}

	return Position{AlbumID: env.A, UploadedAt: env.T, PhotoID: env.P}, nil
}

// MatchesAlbum はカーソルが指定アルバムのものかを返す。
func (p Position) MatchesAlbum(albumID string) bool {
	return p.AlbumID == albumID
}

// FromPhoto は写真の位置を返す。
func FromPhoto(p model.Photo) Position {
	return Position{AlbumID: p.AlbumID, UploadedAt: p.UploadedAt, PhotoID: p.PhotoID}
}
