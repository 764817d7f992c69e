package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/hitoshi/driverdash/internal/authstate"
	"github.com/hitoshi/driverdash/internal/driver"
	"github.com/hitoshi/driverdash/internal/guard"
	"github.com/hitoshi/driverdash/internal/model"
	"github.com/hitoshi/driverdash/internal/visitor"
)

const multipartMemory = 1 << 20

const noticeUnexpected = "An unexpected error occurred"

// currentIdentity はガードを通過したリクエストのログイン中ユーザーを返す。
func currentIdentity(r *http.Request) (*authstate.Identity, bool) {
	st, ok := guard.StateFromContext(r.Context())
	if !ok || st.Identity == nil {
		return nil, false
	}
	return st.Identity, true
}

// requestVisitor はリクエストの訪問者を返す。
// Registryのミドルウェアを通っていない場合は500を返す。
func requestVisitor(w http.ResponseWriter, r *http.Request) (*visitor.Visitor, bool) {
	v, ok := visitor.FromContext(r.Context())
	if !ok {
		slog.Error("visitor missing from request context", slog.String("path", r.URL.Path))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return v, true
}

// notify はリクエストの訪問者へ通知を送る。訪問者がない場合は何もしない。
func notify(r *http.Request, title, description string, variant authstate.Variant) {
	if v, ok := visitor.FromContext(r.Context()); ok {
		v.Notify(authstate.Notice{Title: title, Description: description, Variant: variant})
	}
}

// notifyFailure はエラーを利用者向けの通知に変換する。
// APIError以外は詳細をログのみに記録する。
func notifyFailure(r *http.Request, title string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		notify(r, title, apiErr.Message, authstate.VariantDestructive)
		return
	}
	slog.Error("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	notify(r, title, noticeUnexpected, authstate.VariantDestructive)
}

// seeOther はPOST後のリダイレクトを行う。
func seeOther(w http.ResponseWriter, r *http.Request, location string) {
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// parseForm はフォームを解析する。multipartの場合はファイルも含めて解析する。
func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

// formUpload はフォームの画像ファイルを取り出す。
// ファイルが選択されていない場合はnilを返す。
// 返されたclose関数は処理後に必ず呼ぶこと。
func formUpload(r *http.Request, field string, maxSize int64) (*driver.Upload, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, model.NewInvalidInputError("could not read uploaded file")
	}
	if header.Size == 0 && header.Filename == "" {
		file.Close()
		return nil, func() {}, nil
	}
	if maxSize > 0 && header.Size > maxSize {
		file.Close()
		return nil, func() {}, model.NewUploadTooLargeError(maxSize)
	}
	if !isImage(header) {
		file.Close()
		return nil, func() {}, model.NewInvalidInputError("only image files can be uploaded")
	}
	return &driver.Upload{Name: header.Filename, Body: file}, func() { file.Close() }, nil
}

func isImage(header *multipart.FileHeader) bool {
	ct := header.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "image/")
}

// renderFailure は一覧取得などの失敗をエラーページとして返す。
func renderFailure(rd *Renderer, w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("failed to load page",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	rd.Render(w, r, http.StatusInternalServerError, pageError, "Error", nil)
}
