package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	bannerText    = "WebRTC Signaling server is running"
	healthTimeout = 2 * time.Second
)

func (s *HTTPServer) bannerHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(bannerText))
}

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	code, status := http.StatusOK, "ok"
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "health check failed", "error", err)
		code, status = http.StatusServiceUnavailable, "unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
