package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/orchestrator"
)

// Export format constants.
const (
	formatCSV  = "csv"
	formatJSON = "json"
)

// ExportHandler handles finding export endpoints.
type ExportHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		orch:   orch,
		logger: logger.With("handler", "export"),
	}
}

// ExportIssues handles GET /api/v1/export/{format}. The full finding set,
// filtered like ListIssues, is written as a file download.
func (h *ExportHandler) ExportIssues(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]
	if format != formatCSV && format != formatJSON {
		writeBadRequest(w, r, fmt.Errorf("unsupported export format: %s", format))
		return
	}

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

	filename := fmt.Sprintf("scan-issues-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))

	switch format {
	case formatCSV:
		w.Header().Set("Content-Type", "text/csv")
		if err := writeIssuesCSV(w, issues); err != nil {
			h.logger.Error("CSV export failed",
				"request_id", getRequestIDFromContext(r.Context()),
				"error", err)
		}
	case formatJSON:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(issues); err != nil {
			h.logger.Error("JSON export failed",
				"request_id", getRequestIDFromContext(r.Context()),
				"error", err)
		}
	}
}

// writeIssuesCSV writes findings as CSV rows with a header line.
func writeIssuesCSV(w http.ResponseWriter, issues []*engine.Issue) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "scan_id", "name", "severity", "confidence", "url", "description", "remediation", "discovered_at", "synthetic"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, issue := range issues {
		row := []string{
			issue.ID,
			issue.ScanID,
			issue.Name,
			string(issue.Severity),
			string(issue.Confidence),
			issue.URL,
			issue.Description,
			issue.Remediation,
			issue.DiscoveredAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(issue.Synthetic),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
