package handlers

import (
	"log/slog"
	"net/http"

	"github.com/scandash/scandash/internal/orchestrator"
)

// StatsHandler handles the dashboard summary endpoint.
type StatsHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		orch:   orch,
		logger: logger.With("handler", "stats"),
	}
}

// GetStats handles GET /api/v1/stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orch.GetStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, stats)
}
