package middleware

import (
	"net/http"
	"strconv"
)

// corsMaxAge はプリフライト結果をブラウザがキャッシュする秒数。
const corsMaxAge = 600

// NewCORSMiddleware は/api配下の読み取り専用エンドポイント向けのCORSミドルウェアを返す。
// Originが許可リストに含まれる場合のみ、そのOriginを返してCookie付きの取得を許可する。
// 許可外のOriginやOriginなしのリクエストにはCORSヘッダーを付与しない。
func NewCORSMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				// EventSourceは再接続時にLast-Event-IDを送る
				h.Set("Access-Control-Allow-Headers", "Accept, Last-Event-ID, X-CSRF-Token")
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
