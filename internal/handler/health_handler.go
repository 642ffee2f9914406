package handler

import (
	"net/http"

	"github.com/mfranzen/storyforge/internal/registry"
)

// HealthHandler serves liveness plus a snapshot of scheduler occupancy.
type HealthHandler struct {
	registry *registry.Registry
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(reg *registry.Registry) *HealthHandler {
	return &HealthHandler{registry: reg}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"running":        stats.Running,
		"queued":         stats.Queued,
		"maxConcurrency": stats.MaxConcurrency,
	})
}
