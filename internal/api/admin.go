package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cortexmesh/cascade/internal/cascade"
	"github.com/cortexmesh/cascade/internal/config"
	"github.com/cortexmesh/cascade/internal/events"
	"github.com/cortexmesh/cascade/internal/track"
	"github.com/cortexmesh/cascade/internal/tuner"
)

type AdminHandler struct {
	tracker    *track.Tracker
	thresholds *cascade.Thresholds
	tuner      *tuner.Tuner
	bus        events.Client // optional
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
}

func NewAdminHandler(t *track.Tracker, th *cascade.Thresholds, tn *tuner.Tuner, bus events.Client, cfg *config.Config, configPath string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		tracker:    t,
		thresholds: th,
		tuner:      tn,
		bus:        bus,
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// Stats handles GET /api/v1/stats. Each read also pushes a snapshot on
// the bus for dashboard consumers.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.tracker.Stats()
	clarificationRate := 0.0
	if stats.TotalDecisions > 0 {
		clarificationRate = float64(stats.Clarifications) / float64(stats.TotalDecisions)
	}

	if h.bus != nil {
		err := h.bus.Publish(events.SubjectStats, events.StatsEvent{
			TotalDecisions: stats.TotalDecisions,
			ByLayer:        stats.ByLayer,
			Clarifications: stats.Clarifications,
			Timestamp:      time.Now().UTC(),
		})
		if err != nil {
			h.logger.Warn("failed to publish stats event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions":          stats,
		"clarification_rate": clarificationRate,
	})
}

// Thresholds handles GET /api/v1/thresholds.
func (h *AdminHandler) Thresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.thresholds.Snapshot())
}

// ReloadThresholds handles POST /api/v1/thresholds/reload: re-reads the
// config file and replaces the live thresholds with its values.
func (h *AdminHandler) ReloadThresholds(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load(h.configPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	specs := make([]cascade.LayerSpec, 0, len(cfg.Layers))
	for _, l := range cfg.Layers {
		specs = append(specs, cascade.LayerSpec{
			LayerID:             l.ID,
			Name:                l.Name,
			ConfidenceThreshold: l.ConfidenceThreshold,
			MaxLatencyBudgetMs:  l.MaxLatencyBudgetMs,
		})
	}
	h.thresholds.Reload(specs)
	h.logger.Info("thresholds reloaded from config", "layers", len(specs))
	writeJSON(w, http.StatusOK, h.thresholds.Snapshot())
}

type TuneRequest struct {
	WindowHours int     `json:"window_hours,omitempty"`
	MinSamples  int     `json:"min_samples,omitempty"`
	StepSize    float64 `json:"step_size,omitempty"`
	Aggressive  bool    `json:"aggressive,omitempty"`
}

// Tune handles POST /api/v1/tune/{layer}: one on-demand tuning run for
// a single layer. A no-op below the sample floor still returns 200 with
// the rationale.
func (h *AdminHandler) Tune(w http.ResponseWriter, r *http.Request) {
	layerName := chi.URLParam(r, "layer")

	var req TuneRequest
	if r.Body != nil {
		// Empty body means defaults.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	treq := tuner.Request{
		Layer:      layerName,
		MinSamples: req.MinSamples,
		StepSize:   req.StepSize,
		Aggressive: req.Aggressive,
	}
	if req.WindowHours > 0 {
		treq.Window = time.Duration(req.WindowHours) * time.Hour
	} else {
		treq.Window = h.cfg.Tuner.Window()
	}

	result, err := h.tuner.Tune(r.Context(), treq)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
