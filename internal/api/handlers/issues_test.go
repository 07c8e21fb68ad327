package handlers

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
)

func sampleIssues() []*engine.Issue {
	discovered := time.Date(2025, time.July, 1, 10, 0, 0, 0, time.UTC)
	return []*engine.Issue{
		{
			ID:           "1",
			ScanID:       "7",
			Name:         "SQL Injection",
			Severity:     engine.SeverityHigh,
			Confidence:   engine.ConfidenceCertain,
			URL:          "https://example.com/login",
			Description:  "Injection in login form",
			Remediation:  "Use parameterized queries",
			DiscoveredAt: discovered,
		},
		{
			ID:           "2",
			ScanID:       "7",
			Name:         "Missing Header",
			Severity:     engine.SeverityLow,
			Confidence:   engine.ConfidenceFirm,
			URL:          "https://example.com/",
			Description:  "No CSP header",
			Remediation:  "Configure security headers",
			DiscoveredAt: discovered,
		},
	}
}

func TestListIssuesHandler(t *testing.T) {
	t.Run("lists all issues", func(t *testing.T) {
		orch, _, adapter := newHandlerFixture(t)
		handler := NewIssueHandler(orch, discardLogger())
		adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).Return(sampleIssues(), nil)

		req := httptest.NewRequest("GET", "/api/v1/issues", nil)
		recorder := httptest.NewRecorder()
		handler.ListIssues(recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)

		var issues []*engine.Issue
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &issues))
		assert.Len(t, issues, 2)
	})

	t.Run("severity filter forwarded", func(t *testing.T) {
		orch, _, adapter := newHandlerFixture(t)
		handler := NewIssueHandler(orch, discardLogger())
		adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{Severity: engine.SeverityHigh}).
			Return(sampleIssues()[:1], nil)

		req := httptest.NewRequest("GET", "/api/v1/issues?severity=high", nil)
		recorder := httptest.NewRecorder()
		handler.ListIssues(recorder, req)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("scan id filter forwarded", func(t *testing.T) {
		orch, _, adapter := newHandlerFixture(t)
		handler := NewIssueHandler(orch, discardLogger())
		adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{ScanID: "7"}).
			Return(sampleIssues(), nil)

		req := httptest.NewRequest("GET", "/api/v1/issues?scan_id=7", nil)
		recorder := httptest.NewRecorder()
		handler.ListIssues(recorder, req)
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("invalid severity rejected", func(t *testing.T) {
		orch, _, _ := newHandlerFixture(t)
		handler := NewIssueHandler(orch, discardLogger())

		req := httptest.NewRequest("GET", "/api/v1/issues?severity=catastrophic", nil)
		recorder := httptest.NewRecorder()
		handler.ListIssues(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})
}

func TestExportIssuesHandler(t *testing.T) {
	t.Run("csv export", func(t *testing.T) {
		orch, _, adapter := newHandlerFixture(t)
		handler := NewExportHandler(orch, discardLogger())
		adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).Return(sampleIssues(), nil)

		req := httptest.NewRequest("GET", "/api/v1/export/csv", nil)
		req = mux.SetURLVars(req, map[string]string{"format": "csv"})

		recorder := httptest.NewRecorder()
		handler.ExportIssues(recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "text/csv", recorder.Header().Get("Content-Type"))
		assert.Contains(t, recorder.Header().Get("Content-Disposition"), "attachment")
		assert.Contains(t, recorder.Header().Get("Content-Disposition"), ".csv")

		rows, err := csv.NewReader(strings.NewReader(recorder.Body.String())).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3, "header plus two issues")
		assert.Equal(t, "id", rows[0][0])
		assert.Equal(t, "SQL Injection", rows[1][2])
		assert.Equal(t, "high", rows[1][3])
		assert.Equal(t, "false", rows[1][9])
	})

	t.Run("json export", func(t *testing.T) {
		orch, _, adapter := newHandlerFixture(t)
		handler := NewExportHandler(orch, discardLogger())
		adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).Return(sampleIssues(), nil)

		req := httptest.NewRequest("GET", "/api/v1/export/json", nil)
		req = mux.SetURLVars(req, map[string]string{"format": "json"})

		recorder := httptest.NewRecorder()
		handler.ExportIssues(recorder, req)

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

		var issues []*engine.Issue
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &issues))
		assert.Len(t, issues, 2)
	})

	t.Run("unsupported format rejected", func(t *testing.T) {
		orch, _, _ := newHandlerFixture(t)
		handler := NewExportHandler(orch, discardLogger())

		req := httptest.NewRequest("GET", "/api/v1/export/xml", nil)
		req = mux.SetURLVars(req, map[string]string{"format": "xml"})

		recorder := httptest.NewRecorder()
		handler.ExportIssues(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("export respects severity filter", func(t *testing.T) {
		orch, _, adapter := newHandlerFixture(t)
		handler := NewExportHandler(orch, discardLogger())
		adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{Severity: engine.SeverityHigh}).
			Return(sampleIssues()[:1], nil)

		req := httptest.NewRequest("GET", "/api/v1/export/csv?severity=high", nil)
		req = mux.SetURLVars(req, map[string]string{"format": "csv"})

		recorder := httptest.NewRecorder()
		handler.ExportIssues(recorder, req)

		rows, err := csv.NewReader(strings.NewReader(recorder.Body.String())).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})
}

func TestGetStatsHandler(t *testing.T) {
	orch, repo, adapter := newHandlerFixture(t)
	handler := NewStatsHandler(orch, discardLogger())
	storedScan(repo, "https://a.test", db.ScanStatusRunning, "1")
	storedScan(repo, "https://b.test", db.ScanStatusCompleted, "2")
	adapter.EXPECT().ListIssues(gomock.Any(), engine.IssueFilter{}).Return(sampleIssues(), nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	recorder := httptest.NewRecorder()
	handler.GetStats(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &stats))
	assert.Equal(t, float64(2), stats["total_scans"])
	assert.Equal(t, float64(1), stats["active_scans"])
	assert.Equal(t, float64(2), stats["total_issues"])
}
