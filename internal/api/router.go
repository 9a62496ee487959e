package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// corsMaxAge is how long browsers may cache a preflight answer, in seconds.
const corsMaxAge = 300

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.base.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.base.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         corsMaxAge,
		}))
	}

	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/api/health", s.handleHealth)

	r.Route("/api/crawl", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Group(func(r chi.Router) {
			r.Use(requireAPIKey(s.base.APIKey))
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
		})
	})

	r.Route("/api/items", func(r chi.Router) {
		r.With(middleware.Timeout(30*time.Second)).Get("/", s.handleListItems)
		r.Get("/download", s.handleDownload)
	})

	return r
}
