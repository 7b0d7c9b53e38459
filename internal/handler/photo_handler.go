package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/photolib/internal/listing"
	"github.com/hitoshi/photolib/internal/model"
)

// PhotoServiceInterface は写真一覧ハンドラーが必要とするサービスインターフェース。
type PhotoServiceInterface interface {
	// List はアルバムの写真を新しい順に1ページ分返す。
	List(ctx context.Context, albumID, requesterID string, limit int, cursor string) (*listing.Result, error)
	// Cover はアルバムの最新写真の署名付きURLを返す。写真がなければ空文字。
	Cover(ctx context.Context, albumID, requesterID string) (string, error)
	// ListAlbums は要求者が所有するアルバムを返す。
	ListAlbums(ctx context.Context, requesterID string) ([]listing.AlbumView, error)
}

// PhotoHandler は写真一覧のHTTPハンドラー。
type PhotoHandler struct {
	service PhotoServiceInterface
}

// NewPhotoHandler はPhotoHandlerを生成する。
func NewPhotoHandler(service PhotoServiceInterface) *PhotoHandler {
	return &PhotoHandler{service: service}
}

// photoListResponse は写真一覧のレスポンス。
type photoListResponse struct {
	Items      []listing.PhotoView `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// coverResponse はカバー画像のレスポンス。写真がなければurlはnull。
type coverResponse struct {
	URL *string `json:"url"`
}

// albumListResponse はアルバム一覧のレスポンス。
type albumListResponse struct {
	Albums []listing.AlbumView `json:"albums"`
}

// ListPhotos はアルバムの写真一覧を返す。
// GET /api/albums/{albumID}/photos?limit=N&cursor=xxx
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	albumID := chi.URLParam(r, "albumID")
	result, err := h.service.List(r.Context(), albumID, userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	items := result.Items
	if items == nil {
		items = []listing.PhotoView{}
	}
	writeJSON(w, photoListResponse{Items: items, NextCursor: result.NextCursor})
}

// Cover はアルバムのカバー画像URLを返す。
// GET /api/albums/{albumID}/cover
func (h *PhotoHandler) Cover(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	url, err := h.service.Cover(r.Context(), chi.URLParam(r, "albumID"), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var resp coverResponse
	if url != "" {
		resp.URL = &url
	}
	writeJSON(w, resp)
}

// ListAlbums は要求者のアルバム一覧を返す。
// GET /api/albums
func (h *PhotoHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	albums, err := h.service.ListAlbums(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if albums == nil {
		albums = []listing.AlbumView{}
	}
	writeJSON(w, albumListResponse{Albums: albums})
}

// parseLimit はlimitクエリを解析する。未指定は0（既定値を使う）を返す。
// 上限を超える値はサービス側で切り詰める。
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, model.NewInvalidLimitError(raw)
	}
	return n, nil
}
