package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires middleware and routes. gatherer backs /metrics.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger.Zap()))
	r.Use(middleware.Recoverer)
	if h.config.Security.CORSEnabled {
		r.Use(CORSMiddleware(h.config.Security.CORSOrigins))
	}

	// Routes
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.CreateTask)
		r.Get("/", h.ListTasks)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Get("/runs", h.GetRuns)
			r.Get("/families", h.GetFamilies)
			r.Post("/resume", h.ResumeTask)
			r.Post("/override", h.OverrideTask)
		})
	})
	r.Post("/analyze", h.Analyze)
	r.Get("/patterns", h.FragilePatterns)
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
