// Package api assembles the gateway's HTTP surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentgate/agentgate/gateway/internal/api/middleware"
)

// NewRouter builds the chi router with the full middleware stack and
// every gateway route mounted.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	if h.Config.Telemetry.Enabled {
		r.Use(middleware.Telemetry)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-Id"},
		ExposedHeaders:   []string{"X-Trace-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Get("/version", h.handleVersion)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/requests", h.handleProcess)
		r.Post("/convert", h.handleConvert)

		r.Get("/audit", h.handleAudit)
		r.Get("/stats", h.handleStats)

		r.Route("/tools", func(r chi.Router) {
			r.Get("/", h.handleListTools)
			r.Post("/", h.handleRegisterTool)
			r.Get("/{toolID}", h.handleGetTool)
			r.Delete("/{toolID}", h.handleDeleteTool)
		})
	})

	return r
}
