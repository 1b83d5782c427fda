package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryanbastic/go-docshift/internal/metrics"
	"github.com/ryanbastic/go-docshift/internal/runner"
)

// NewServer creates an HTTP server with all routes configured.
func NewServer(logger *slog.Logger, run *runner.Runner, registry *runner.Registry, runs runner.RunStore, db Pinger) http.Handler {
	mux := chi.NewRouter()

	mux.Use(RequestID)
	mux.Use(Logging(logger))
	mux.Use(Recovery(logger))
	mux.Use(metrics.Metrics)

	mux.Handle("/metrics", promhttp.Handler())

	healthHandler := NewHealthHandler(db, logger)
	mux.Get("/v1/livez", healthHandler.Livez)
	mux.Get("/v1/readyz", healthHandler.Readyz)

	humaAPI := humachi.New(mux, huma.DefaultConfig("docshift", "1.0.0"))
	registerMigrationRoutes(humaAPI, NewMigrationHandler(run, registry, runs, logger))

	return mux
}
