package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name         string
		pingErr      error
		wantStatus   int
		wantResponse healthResponse
	}{
		{"DB疎通あり", nil, http.StatusOK, healthResponse{Status: "ok", Database: "ok"}},
		{"DB疎通なし", errors.New("connection refused"), http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Database: "unreachable"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(&mockHealthChecker{err: tt.pingErr})
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var got healthResponse
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if got != tt.wantResponse {
				t.Errorf("response = %+v, want %+v", got, tt.wantResponse)
			}
		})
	}
}
