package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(allowed []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := NewCORSMiddleware(allowed...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, called
}

func TestCORSMiddleware_AllowedOrigin_EchoesOrigin(t *testing.T) {
	allowed := []string{"https://drive.example.com", "https://ops.example.com"}

	for _, origin := range allowed {
		t.Run(origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			req.Header.Set("Origin", origin)

			w, called := serveCORS(allowed, req)

			if !called || w.Code != http.StatusOK {
				t.Fatalf("status = %d, called = %v", w.Code, called)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, origin)
			}
			if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
				t.Errorf("Access-Control-Allow-Credentials = %q", got)
			}
			// 単純リクエストにはプリフライト用ヘッダーを付けない
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != "" {
				t.Errorf("Access-Control-Allow-Methods = %q, want empty", got)
			}
		})
	}
}

func TestCORSMiddleware_Preflight_Returns204(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/session/stream", nil)
	req.Header.Set("Origin", "https://drive.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	w, called := serveCORS([]string{"https://drive.example.com"}, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if called {
		t.Error("next handler should not be called for preflight")
	}

	tests := []struct {
		header string
		want   string
	}{
		{"Access-Control-Allow-Origin", "https://drive.example.com"},
		{"Access-Control-Allow-Methods", "GET, OPTIONS"},
		{"Access-Control-Allow-Headers", "Accept, Last-Event-ID, X-CSRF-Token"},
		{"Access-Control-Max-Age", "600"},
	}
	for _, tt := range tests {
		if got := w.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestCORSMiddleware_NoCORSHeaders(t *testing.T) {
	tests := []struct {
		name   string
		origin string
	}{
		{"foreign origin", "https://evil.example.net"},
		{"same-origin request without Origin", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			w, called := serveCORS([]string{"https://drive.example.com"}, req)

			if !called {
				t.Error("next handler should be called")
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
				t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
			}
			if got := w.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
		})
	}
}

func TestCORSMiddleware_EmptyOriginIsNeverAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)

	w, _ := serveCORS([]string{""}, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}
