package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
)

// recoveryPage はページリクエストでpanicした場合に返すHTML。
const recoveryPage = `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Error | DriverDash</title></head>` +
	`<body><h1>Something went wrong</h1><p>Please try again later.</p><p><a href="/">Back to home</a></p></body></html>`

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// /api配下とHTMLを受け付けないクライアントには統一JSONエラーを、それ以外にはエラーページを返す。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				if wantsHTML(r) {
					w.Header().Set("Content-Type", "text/html; charset=utf-8")
					w.Header().Set("Cache-Control", "no-store")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(recoveryPage))
					return
				}
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wantsHTML はページとして応答すべきリクエストかどうかを判定する。
func wantsHTML(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
