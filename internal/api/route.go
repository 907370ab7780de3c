package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cortexmesh/cascade/internal/cascade"
	"github.com/cortexmesh/cascade/internal/track"
)

type RouteHandler struct {
	orchestrator *cascade.Orchestrator
}

func NewRouteHandler(o *cascade.Orchestrator) *RouteHandler {
	return &RouteHandler{orchestrator: o}
}

type RouteRequest struct {
	TaskID      string            `json:"task_id,omitempty"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Route handles POST /api/v1/route. Clarification is a normal 200
// response with selected_target null, not an error.
func (h *RouteHandler) Route(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	task := track.Task{
		ID:          req.TaskID,
		Description: req.Description,
		Metadata:    req.Metadata,
	}

	decision, err := h.orchestrator.Route(r.Context(), task)
	if err != nil {
		switch {
		case errors.Is(err, track.ErrEmptyDescription):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, context.Canceled):
			// Caller went away; nothing useful to write.
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
