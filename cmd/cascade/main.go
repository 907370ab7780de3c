package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexmesh/cascade/internal/api"
	"github.com/cortexmesh/cascade/internal/backend"
	"github.com/cortexmesh/cascade/internal/cache"
	"github.com/cortexmesh/cascade/internal/cascade"
	"github.com/cortexmesh/cascade/internal/config"
	"github.com/cortexmesh/cascade/internal/events"
	"github.com/cortexmesh/cascade/internal/layer"
	"github.com/cortexmesh/cascade/internal/registry"
	"github.com/cortexmesh/cascade/internal/track"
	"github.com/cortexmesh/cascade/internal/tuner"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Routing record log
	var recordLog track.RecordLog
	if cfg.Database.URL != "" {
		pg, err := track.NewPostgresLog(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		recordLog = pg
		logger.Info("connected to database")
	} else {
		recordLog = track.NewMemoryLog()
		logger.Warn("no database configured, routing records are in-memory only")
	}
	defer recordLog.Close()

	tracker := track.NewTracker(recordLog, logger)

	// Event bus (optional)
	var bus events.Client
	if cfg.Events.URL != "" {
		nc, err := events.NewNATSClient(ctx, cfg.Events.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to event bus, running without events", "error", err)
		} else {
			bus = nc
			defer nc.Close()
			logger.Info("connected to event bus")
		}
	}

	// Target registry
	targets := make([]registry.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets = append(targets, registry.Target{
			Name:        t.Name,
			Description: t.Description,
			Endpoint:    t.Endpoint,
			Keywords:    t.Keywords,
		})
	}
	reg, err := registry.New(targets, cfg.Registry.MinClassifierSamples)
	if err != nil {
		logger.Error("failed to build target registry", "error", err)
		os.Exit(1)
	}

	// Layer adapters over the external model backends
	embedder := backend.NewHTTPEmbedder(cfg.Backends.Embedding.URL, cfg.Backends.Embedding.Timeout())
	retriever := backend.NewHTTPRetriever(cfg.Backends.Retrieval.URL, cfg.Backends.Retrieval.Timeout())
	classifier := backend.NewHTTPClassifier(cfg.Backends.Classifier.URL, cfg.Backends.Classifier.Timeout())

	semantic := layer.NewSemantic(embedder, reg, logger)
	warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := semantic.WarmUp(warmCtx); err != nil {
		logger.Warn("semantic index warm-up incomplete", "error", err)
	}
	warmCancel()

	adapters := map[string]layer.Adapter{
		"keyword":    layer.NewKeyword(reg),
		"semantic":   semantic,
		"contextual": layer.NewContextual(semantic, retriever, cfg.Contextual.BlendAlpha, cfg.Contextual.Neighbors),
		"classifier": layer.NewClassifier(classifier, reg),
	}

	entries := make([]cascade.Entry, 0, len(cfg.Layers))
	specs := make([]cascade.LayerSpec, 0, len(cfg.Layers))
	layerNames := make([]string, 0, len(cfg.Layers))
	for _, l := range cfg.Layers {
		adapter, ok := adapters[l.Name]
		if !ok {
			logger.Error("no adapter for configured layer", "layer", l.Name)
			os.Exit(1)
		}
		spec := cascade.LayerSpec{
			LayerID:             l.ID,
			Name:                l.Name,
			ConfidenceThreshold: l.ConfidenceThreshold,
			MaxLatencyBudgetMs:  l.MaxLatencyBudgetMs,
		}
		entries = append(entries, cascade.Entry{Spec: spec, Adapter: adapter})
		specs = append(specs, spec)
		layerNames = append(layerNames, l.Name)
	}
	thresholds := cascade.NewThresholds(specs)

	// Decision cache (optional)
	var decisions *cache.Decisions
	if cfg.Cache.Enabled {
		decisions, err = cache.New(cfg.Cache.MaxBytes, cfg.Cache.TTL())
		if err != nil {
			logger.Error("failed to build decision cache", "error", err)
			os.Exit(1)
		}
		defer decisions.Close()
	}

	orchestrator, err := cascade.New(entries, thresholds, tracker, reg, bus, decisions, logger)
	if err != nil {
		logger.Error("failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	// Threshold tuner: on-demand via the admin API and periodic in the
	// background.
	tun := tuner.New(tracker, thresholds, bus, logger)
	job := tuner.NewJob(tun, layerNames, cfg.Tuner.Interval(), tuner.Request{
		Window:     cfg.Tuner.Window(),
		MinSamples: cfg.Tuner.MinSamples,
		StepSize:   cfg.Tuner.StepSize,
		Aggressive: cfg.Tuner.Aggressive,
	}, logger)
	job.Start(ctx)
	defer job.Stop()
	logger.Info("tuner job started", "interval", cfg.Tuner.Interval())

	// API server
	router := api.NewRouter(orchestrator, tracker, thresholds, reg, tun, bus, cfg, *configPath, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// SIGHUP hot-reloads layer thresholds from the config file; SIGINT
	// and SIGTERM shut down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		reloaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config reload failed, keeping current thresholds", "error", err)
			continue
		}
		fresh := make([]cascade.LayerSpec, 0, len(reloaded.Layers))
		for _, l := range reloaded.Layers {
			fresh = append(fresh, cascade.LayerSpec{
				LayerID:             l.ID,
				Name:                l.Name,
				ConfidenceThreshold: l.ConfidenceThreshold,
				MaxLatencyBudgetMs:  l.MaxLatencyBudgetMs,
			})
		}
		thresholds.Reload(fresh)
		logger.Info("thresholds reloaded on SIGHUP", "layers", len(fresh))
	}

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
