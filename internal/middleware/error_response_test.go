package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/photolib/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// TestWriteErrorResponse_DomainErrors はドメインエラーがそのまま統一フォーマットで書き出されることを検証する。
func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		err      *model.APIError
		category string
	}{
		{"not authorized", http.StatusNotFound, model.NewNotAuthorizedError(), "auth"},
		{"invalid cursor", http.StatusBadRequest, model.NewInvalidCursorError("bad base64"), "validation"},
		{"cursor mismatch", http.StatusBadRequest, model.NewCursorMismatchError("album-2"), "validation"},
		{"invalid limit", http.StatusBadRequest, model.NewInvalidLimitError("abc"), "validation"},
		{"store unavailable", http.StatusServiceUnavailable, model.NewStoreUnavailableError("photos.query", errors.New("timeout")), "storage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decodeErrorBody(t, w)
			if body.Code != tt.err.Code {
				t.Errorf("code = %q, want %q", body.Code, tt.err.Code)
			}
			if body.Category != tt.category {
				t.Errorf("category = %q, want %q", body.Category, tt.category)
			}
			if body.Message == "" || body.Action == "" {
				t.Errorf("message and action should be set, got %+v", body)
			}
		})
	}
}

// TestWriteErrorResponse_DoesNotLeakCause は原因エラーがレスポンスに含まれないことを検証する。
func TestWriteErrorResponse_DoesNotLeakCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusServiceUnavailable,
		model.NewStoreUnavailableError("albums.find", errors.New("dial tcp 10.0.0.1:5432: connection refused")))

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if len(raw) != 4 {
		t.Errorf("response should have exactly code/message/category/action, got %v", raw)
	}
	for _, v := range raw {
		if s, _ := v.(string); strings.Contains(s, "10.0.0.1") {
			t.Errorf("response leaks the cause: %v", raw)
		}
	}
}

func TestWriteUnauthorized(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Code != "UNAUTHORIZED" || body.Category != "auth" {
		t.Errorf("body = %+v, want UNAUTHORIZED/auth", body)
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("body = %+v, want INTERNAL_ERROR/system", body)
	}
}
