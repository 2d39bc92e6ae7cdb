package wsmux

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFallbackHandler(t *testing.T) {
	h := NewFallbackHandler("1.2.3")
	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/health", http.StatusOK, "OK\n"},
		{"/version", http.StatusOK, "1.2.3\n"},
		{"/", http.StatusUpgradeRequired, "Upgrade Required\n"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status %d, want %d", tt.path, rec.Code, tt.wantStatus)
		}
		if rec.Body.String() != tt.wantBody {
			t.Errorf("%s: body %q, want %q", tt.path, rec.Body.String(), tt.wantBody)
		}
	}
}
