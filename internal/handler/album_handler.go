package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/photolib/internal/cascade"
	"github.com/hitoshi/photolib/internal/middleware"
)

// CascadeServiceInterface はアルバム・アカウント削除のサービスインターフェース。
type CascadeServiceInterface interface {
	// DeleteAlbum はアルバムと配下の写真・blobを削除する。
	DeleteAlbum(ctx context.Context, albumID, requesterID string) (*cascade.Report, error)
	// DeleteAccount はアカウントと所有する全データを削除する。
	DeleteAccount(ctx context.Context, userID string) (*cascade.Report, error)
}

// AlbumHandler はアルバム削除のHTTPハンドラー。
type AlbumHandler struct {
	service CascadeServiceInterface
}

// NewAlbumHandler はAlbumHandlerを生成する。
func NewAlbumHandler(service CascadeServiceInterface) *AlbumHandler {
	return &AlbumHandler{service: service}
}

// DeleteAlbum はアルバムを削除する。
// blobの一部削除失敗はメタデータ削除が完了していれば204とし、ログに残す。
// DELETE /api/albums/{albumID}
func (h *AlbumHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	albumID := chi.URLParam(r, "albumID")
	report, err := h.service.DeleteAlbum(r.Context(), albumID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	logPartialFailure(r, report, slog.String("album_id", albumID))

	w.WriteHeader(http.StatusNoContent)
}

func logPartialFailure(r *http.Request, report *cascade.Report, attrs ...any) {
	if report == nil || !report.PartialFailure() {
		return
	}
	attrs = append(attrs,
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.Int("failed_keys", len(report.FailedBlobKeys)),
	)
	slog.Warn("一部のblobが削除できませんでした。孤立blob掃除で回収されます", attrs...)
}
