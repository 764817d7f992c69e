package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/driverdash/internal/storage"
)

var _ ObjectOpener = (*storage.LocalStore)(nil)

func newTestUploadHandler(t *testing.T) (*UploadHandler, *storage.LocalStore) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8080/uploads")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return NewUploadHandler(store), store
}

func TestUploadHandler_Serve_ReturnsObject(t *testing.T) {
	h, store := newTestUploadHandler(t)
	if _, err := store.Upload(context.Background(), "car-uploads", "user-1/car.jpg",
		strings.NewReader("jpeg-bytes"), storage.UploadOptions{}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/uploads/car-uploads/user-1/car.jpg", nil),
		"bucket", "car-uploads", "*", "user-1/car.jpg")
	w := httptest.NewRecorder()
	h.Serve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", cc)
	}
	body, _ := io.ReadAll(w.Body)
	if string(body) != "jpeg-bytes" {
		t.Errorf("body = %q", body)
	}
}

func TestUploadHandler_Serve_CustomCacheControl(t *testing.T) {
	h, store := newTestUploadHandler(t)
	if _, err := store.Upload(context.Background(), "trip-uploads", "user-1/start.png",
		strings.NewReader("png"), storage.UploadOptions{CacheControl: "60"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/uploads/trip-uploads/user-1/start.png", nil),
		"bucket", "trip-uploads", "*", "user-1/start.png")
	w := httptest.NewRecorder()
	h.Serve(w, req)

	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestUploadHandler_Serve_NotFound(t *testing.T) {
	h, _ := newTestUploadHandler(t)

	tests := []struct {
		name   string
		bucket string
		path   string
	}{
		{"存在しないオブジェクト", "car-uploads", "user-1/missing.jpg"},
		{"パストラバーサル", "car-uploads", "../../etc/passwd"},
		{"不正なバケット名", "..", "x.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withChiURLParams(httptest.NewRequest(http.MethodGet, "/uploads/x", nil), "bucket", tt.bucket, "*", tt.path)
			w := httptest.NewRecorder()
			h.Serve(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
			}
		})
	}
}

func mustLocalStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	_, store := newTestUploadHandler(t)
	return store
}
