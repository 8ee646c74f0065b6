// Package api assembles the control plane HTTP router.
package api

import (
	"net/http"

	"github.com/dvloznov/paypal-pipeline/internal/api/handlers"
	"github.com/dvloznov/paypal-pipeline/internal/api/middleware"
	"github.com/dvloznov/paypal-pipeline/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the router.
type Deps struct {
	Publisher   jobs.Publisher
	Store       jobs.JobStore
	Metrics     http.Handler
	Environment string
	JWTSecret   string
	Log         zerolog.Logger
}

// NewRouter returns the API router. /health and /metrics are public; /api
// requires a bearer token when JWTSecret is set.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.CORS)

	r.Get("/health", handlers.Health(d.Environment))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	runs := handlers.NewRunsHandler(d.Publisher, d.Store, d.Log)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(d.JWTSecret, d.Log))
		r.Post("/runs", runs.CreateRun)
		r.Get("/runs", runs.ListRuns)
		r.Get("/runs/{id}", runs.GetRun)
	})

	return r
}
