package httpserver

import (
	"net/http"
	"strings"

	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/live-signaling/internal/origin"
)

// Every browser-facing route is a GET (the WebSocket handshake included), so
// preflights only ever need to cover GET plus the credential headers.
const (
	corsAllowMethods = "GET, OPTIONS"
	corsAllowHeaders = "Authorization, X-API-Key, X-Request-ID"
	corsMaxAge       = "600"
)

// withOriginPolicy rejects cross-origin requests that the configured policy
// does not allow and decorates allowed ones with CORS headers. Requests
// without an Origin header pass through untouched.
func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		normalized, host, present, ok := origin.FromRequest(r)
		if !present {
			next(w, r)
			return
		}
		if !ok || !origin.IsAllowed(normalized, host, r.Host, s.cfg.AllowedOrigins) {
			s.metrics.Inc(metrics.OriginsRejected)
			s.log.Debug("origin rejected", "origin", r.Header.Get("Origin"), "host", r.Host, "path", r.URL.Path)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", normalized)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		h.Add("Vary", "Origin")

		if isPreflight(r) {
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")) != ""
}
