package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/driverdash/internal/storage"
)

// ObjectOpener は保存済みオブジェクトを読み出す。storage.LocalStoreが実装する。
type ObjectOpener interface {
	Open(bucket, objectPath string) (*storage.Object, error)
}

// UploadHandler はアップロード画像の公開URLを配信する。
type UploadHandler struct {
	store ObjectOpener
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(store ObjectOpener) *UploadHandler {
	return &UploadHandler{store: store}
}

// Serve はオブジェクトを返す。Cache-Controlには保存時の秒数を使う。
// GET /uploads/{bucket}/*
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	obj, err := h.store.Open(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to open upload",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	w.Header().Set("Cache-Control", "public, max-age="+obj.CacheControl)
	http.ServeContent(w, r, obj.Name, time.Time{}, obj)
}
