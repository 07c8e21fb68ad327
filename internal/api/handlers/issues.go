package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/orchestrator"
)

// IssueHandler handles finding retrieval endpoints.
type IssueHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewIssueHandler creates a new issue handler.
func NewIssueHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *IssueHandler {
	return &IssueHandler{
		orch:   orch,
		logger: logger.With("handler", "issues"),
	}
}

// ListIssues handles GET /api/v1/issues. Supports severity and scan_id
// query filters.
func (h *IssueHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	filter, err := issueFilterFromQuery(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	issues, err := h.orch.ListIssues(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, issues)
}

// issueFilterFromQuery builds an issue filter from query parameters.
func issueFilterFromQuery(r *http.Request) (engine.IssueFilter, error) {
	filter := engine.IssueFilter{
		ScanID: r.URL.Query().Get("scan_id"),
	}

	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity := engine.Severity(raw)
		if !severity.IsValid() {
			return engine.IssueFilter{}, fmt.Errorf("invalid severity: %s", raw)
		}
		filter.Severity = severity
	}

	return filter, nil
}
