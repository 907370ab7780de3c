package api

import (
	"net/http"

	"github.com/cortexmesh/cascade/internal/registry"
)

type TargetsHandler struct {
	registry *registry.Registry
}

func NewTargetsHandler(reg *registry.Registry) *TargetsHandler {
	return &TargetsHandler{registry: reg}
}

// List handles GET /api/v1/targets: every routable target with its
// cold-start state.
func (h *TargetsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Info())
}
