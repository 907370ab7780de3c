package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cortexmesh/cascade/internal/events"
	"github.com/cortexmesh/cascade/internal/metrics"
	"github.com/cortexmesh/cascade/internal/track"
)

type EventsHandler struct {
	tracker *track.Tracker
	bus     events.Client // optional
	logger  *slog.Logger
}

func NewEventsHandler(t *track.Tracker, bus events.Client, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{tracker: t, bus: bus, logger: logger}
}

// Get handles GET /api/v1/events/{id}: the folded current state of one
// routing event, including any attached outcome and derived feedback.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	event, err := h.tracker.Event(r.Context(), id)
	if err != nil {
		if errors.Is(err, track.ErrEventNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// RecordOutcome handles POST /api/v1/events/{id}/outcome: the push
// callback from whatever executed the routed task. Idempotent: a
// repeated submission overwrites the earlier outcome when folded.
func (h *EventsHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	var outcome track.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	switch outcome.Status {
	case track.OutcomeCompleted, track.OutcomeFailed, track.OutcomeInProgress:
	case "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status required"})
		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status: " + string(outcome.Status)})
		return
	}

	feedback, err := h.tracker.RecordOutcome(r.Context(), id, outcome)
	if err != nil {
		if errors.Is(err, track.ErrEventNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	metrics.Outcomes.WithLabelValues(string(outcome.Status)).Inc()

	if h.bus != nil {
		err := h.bus.Publish(events.SubjectOutcomeRecorded(id.String()), events.OutcomeEvent{
			EventID:       id.String(),
			Status:        string(outcome.Status),
			TaskCompleted: outcome.TaskCompleted,
			CorrectedTo:   outcome.CorrectedTo,
		})
		if err != nil {
			h.logger.Warn("failed to publish outcome event", "event_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": id,
		"feedback": feedback,
	})
}
