package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const bearerPrefix = "bearer "

// requireAPIKey checks the bearer token: 401 when missing, 403 when wrong.
// An empty key disables the check.
func requireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if len(auth) < len(bearerPrefix) || !strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
				respondWithError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			token := strings.TrimSpace(auth[len(bearerPrefix):])
			if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				respondWithError(w, http.StatusForbidden, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger writes one log entry per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if r.URL.Path == "/api/health" || r.URL.Path == "/metrics" {
			s.logger.Debug("request", attrs...)
			return
		}
		s.logger.Info("request", attrs...)
	})
}
