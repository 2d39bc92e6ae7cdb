package wsmux

import (
	"net/http"
)

// NewFallbackHandler returns the handler used for requests that are not
// WebSocket upgrades. It answers the health and version probes and tells
// everything else to upgrade. The connection is closed after the response.
func NewFallbackHandler(version string) http.Handler {
	if version == "" {
		version = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Write([]byte("OK\n"))
			return
		case "/version":
			w.Write([]byte(version + "\n"))
			return
		}
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "Upgrade Required", http.StatusUpgradeRequired)
	})
}
