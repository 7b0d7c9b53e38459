package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/photolib/internal/stats"
)

// StatsServiceInterface は利用状況の集計サービスインターフェース。
type StatsServiceInterface interface {
	// ForUser はユーザーのアルバム数・写真数・合計サイズを返す。
	ForUser(ctx context.Context, userID string) (*stats.Usage, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	deleter CascadeServiceInterface
	stats   StatsServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(deleter CascadeServiceInterface, stats StatsServiceInterface) *UserHandler {
	return &UserHandler{
		deleter: deleter,
		stats:   stats,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 所有アルバム、写真、blob、アバター、ワンタイムトークン、アカウント行を削除する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	report, err := h.deleter.DeleteAccount(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	logPartialFailure(r, report, slog.String("user_id", userID))

	w.WriteHeader(http.StatusNoContent)
}

// Stats は要求者の利用状況を返す。
// GET /api/stats
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	usage, err := h.stats.ForUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, usage)
}
