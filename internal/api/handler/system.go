package handler

import (
	"net/http"

	"github.com/maxkimambo/dataflow/internal/api/response"
	"github.com/maxkimambo/dataflow/internal/service"
)

// SystemHandler handles system-level operations.
type SystemHandler struct {
	runs *service.RunService
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(runs *service.RunService) *SystemHandler {
	return &SystemHandler{runs: runs}
}

// Health handles GET /v1/health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"status":      "ok",
		"active_runs": len(h.runs.Active()),
	})
}
