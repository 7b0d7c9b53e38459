package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/photolib/internal/cascade"
	"github.com/hitoshi/photolib/internal/listing"
	"github.com/hitoshi/photolib/internal/middleware"
	"github.com/hitoshi/photolib/internal/stats"
)

// --- モック定義 ---

// mockPhotoService はPhotoServiceInterfaceのモック実装。
type mockPhotoService struct {
	listFn       func(ctx context.Context, albumID, requesterID string, limit int, cursor string) (*listing.Result, error)
	coverFn      func(ctx context.Context, albumID, requesterID string) (string, error)
	listAlbumsFn func(ctx context.Context, requesterID string) ([]listing.AlbumView, error)
}

func (m *mockPhotoService) List(ctx context.Context, albumID, requesterID string, limit int, cursor string) (*listing.Result, error) {
	if m.listFn != nil {
		return m.listFn(ctx, albumID, requesterID, limit, cursor)
	}
	return &listing.Result{}, nil
}

func (m *mockPhotoService) Cover(ctx context.Context, albumID, requesterID string) (string, error) {
	if m.coverFn != nil {
		return m.coverFn(ctx, albumID, requesterID)
	}
	return "", nil
}

func (m *mockPhotoService) ListAlbums(ctx context.Context, requesterID string) ([]listing.AlbumView, error) {
	if m.listAlbumsFn != nil {
		return m.listAlbumsFn(ctx, requesterID)
	}
	return nil, nil
}

// mockCascadeService はCascadeServiceInterfaceのモック実装。
type mockCascadeService struct {
	deleteAlbumFn   func(ctx context.Context, albumID, requesterID string) (*cascade.Report, error)
	deleteAccountFn func(ctx context.Context, userID string) (*cascade.Report, error)
}

func (m *mockCascadeService) DeleteAlbum(ctx context.Context, albumID, requesterID string) (*cascade.Report, error) {
	if m.deleteAlbumFn != nil {
		return m.deleteAlbumFn(ctx, albumID, requesterID)
	}
	return &cascade.Report{}, nil
}

func (m *mockCascadeService) DeleteAccount(ctx context.Context, userID string) (*cascade.Report, error) {
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, userID)
	}
	return &cascade.Report{}, nil
}

// mockStatsService はStatsServiceInterfaceのモック実装。
type mockStatsService struct {
	forUserFn func(ctx context.Context, userID string) (*stats.Usage, error)
}

func (m *mockStatsService) ForUser(ctx context.Context, userID string) (*stats.Usage, error) {
	if m.forUserFn != nil {
		return m.forUserFn(ctx, userID)
	}
	return &stats.Usage{}, nil
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
