package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cortexmesh/cascade/internal/cascade"
	"github.com/cortexmesh/cascade/internal/config"
	"github.com/cortexmesh/cascade/internal/events"
	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
	"github.com/cortexmesh/cascade/internal/tuner"
)

func NewRouter(o *cascade.Orchestrator, t *track.Tracker, th *cascade.Thresholds, reg *registry.Registry, tn *tuner.Tuner, bus events.Client, cfg *config.Config, configPath string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(RateLimitMiddleware(cfg.Server.RateLimit))

	route := NewRouteHandler(o)
	eventsHandler := NewEventsHandler(t, bus, logger)
	targets := NewTargetsHandler(reg)
	admin := NewAdminHandler(t, th, tn, bus, cfg, configPath, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/route", route.Route)

		r.Get("/events/{id}", eventsHandler.Get)
		r.Post("/events/{id}/outcome", eventsHandler.RecordOutcome)

		r.Get("/targets", targets.List)
		r.Get("/thresholds", admin.Thresholds)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.Server.AdminToken))
			r.Get("/stats", admin.Stats)
			r.Post("/thresholds/reload", admin.ReloadThresholds)
			r.Post("/tune/{layer}", admin.Tune)
		})
	})

	return r
}

func NewMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
