// Package handlers provides HTTP request handlers for the scandash API.
// This file implements the scan lifecycle endpoints: starting scans,
// listing them, and forwarding pause, resume, and stop commands.
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scandash/scandash/internal/api/middleware"
	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/orchestrator"
)

// ScanHandler handles scan lifecycle API endpoints.
type ScanHandler struct {
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
	validate *validator.Validate
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		orch:     orch,
		logger:   logger.With("handler", "scan"),
		validate: validator.New(),
	}
}

// StartScanRequest represents a scan start request.
type StartScanRequest struct {
	TargetURL string `json:"target_url" validate:"required,url,max=2048"`
	Name      string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
}

// ScanResponse represents a scan record in API responses.
type ScanResponse struct {
	*db.ScanRecord
	Progress *engine.Progress `json:"progress,omitempty"`
}

// StartScan handles POST /api/v1/scans.
func (h *ScanHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestIDFromContext(r.Context())

	var req StartScanRequest
	if err := parseJSON(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeBadRequest(w, r, fmt.Errorf("invalid scan request: %w", err))
		return
	}

	record, err := h.orch.StartScan(r.Context(), orchestrator.StartRequest{
		TargetURL: req.TargetURL,
		Name:      req.Name,
	}, middleware.GetCaller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Info("Scan started",
		"request_id", requestID,
		"scan_id", record.ID,
		"target", record.TargetURL)

	writeJSON(w, r, http.StatusCreated, ScanResponse{ScanRecord: record})
}

// ListScans handles GET /api/v1/scans. An optional status query parameter
// restricts the listing to one lifecycle state.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	params, err := getPaginationParams(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	var records []*db.ScanRecord
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := db.ScanStatus(raw)
		if !status.IsValid() {
			writeBadRequest(w, r, fmt.Errorf("invalid status filter: %q", raw))
			return
		}
		records, err = h.orch.ListScansByStatus(r.Context(), status)
	} else {
		records, err = h.orch.ListScans(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	page := paginateRecords(records, params)
	responses := make([]ScanResponse, 0, len(page))
	for _, record := range page {
		responses = append(responses, ScanResponse{ScanRecord: record})
	}

	writePaginatedResponse(w, r, responses, params, int64(len(records)))
}

// ListActiveScans handles GET /api/v1/scans/active. Each active record is
// returned with a live progress snapshot.
func (h *ScanHandler) ListActiveScans(w http.ResponseWriter, r *http.Request) {
	active, err := h.orch.ListActiveScans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	responses := make([]ScanResponse, 0, len(active))
	for _, scan := range active {
		responses = append(responses, ScanResponse{ScanRecord: scan.Record, Progress: scan.Progress})
	}

	writeJSON(w, r, http.StatusOK, responses)
}

// GetProgress handles GET /api/v1/scans/{id}/progress.
func (h *ScanHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	progress, err := h.orch.GetProgress(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, progress)
}

// PauseScan handles POST /api/v1/scans/{id}/pause.
func (h *ScanHandler) PauseScan(w http.ResponseWriter, r *http.Request) {
	h.runCommand(w, r, "pause", h.orch.PauseScan)
}

// ResumeScan handles POST /api/v1/scans/{id}/resume.
func (h *ScanHandler) ResumeScan(w http.ResponseWriter, r *http.Request) {
	h.runCommand(w, r, "resume", h.orch.ResumeScan)
}

// StopScan handles POST /api/v1/scans/{id}/stop.
func (h *ScanHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	h.runCommand(w, r, "stop", h.orch.StopScan)
}

type commandFunc func(ctx context.Context, id uuid.UUID, caller *auth.Caller) (*db.ScanRecord, error)

func (h *ScanHandler) runCommand(w http.ResponseWriter, r *http.Request, verb string, command commandFunc) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	record, err := command(r.Context(), id, middleware.GetCaller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Info("Scan command applied",
		"request_id", getRequestIDFromContext(r.Context()),
		"scan_id", record.ID,
		"command", verb,
		"status", record.Status)

	writeJSON(w, r, http.StatusOK, ScanResponse{ScanRecord: record})
}

// paginateRecords slices a record list according to pagination parameters.
func paginateRecords(records []*db.ScanRecord, params PaginationParams) []*db.ScanRecord {
	if params.Offset >= len(records) {
		return nil
	}
	end := params.Offset + params.PageSize
	if end > len(records) {
		end = len(records)
	}
	return records[params.Offset:end]
}
