package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/scandash/scandash/internal/api/handlers"
	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/config"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/engine/mocks"
	"github.com/scandash/scandash/internal/errors"
	"github.com/scandash/scandash/internal/metrics"
	"github.com/scandash/scandash/internal/orchestrator"
)

// emptyRepo is a repository with no records, enough to route requests.
type emptyRepo struct{}

var _ orchestrator.Repository = emptyRepo{}

func (emptyRepo) InsertScan(context.Context, *db.ScanRecord) error { return nil }
func (emptyRepo) UpdateScan(context.Context, *db.ScanRecord) error { return nil }
func (emptyRepo) GetScan(_ context.Context, id uuid.UUID) (*db.ScanRecord, error) {
	return nil, errors.ErrScanNotFound(id.String())
}
func (emptyRepo) FindScanByTargetAndStatuses(context.Context, string, []db.ScanStatus) (*db.ScanRecord, error) {
	return nil, nil
}
func (emptyRepo) FindScanByTargetNameStatus(context.Context, string, string, db.ScanStatus) (*db.ScanRecord, error) {
	return nil, nil
}
func (emptyRepo) ListScansByStatuses(context.Context, []db.ScanStatus) ([]*db.ScanRecord, error) {
	return nil, nil
}
func (emptyRepo) ListScans(context.Context) ([]*db.ScanRecord, error) { return nil, nil }
func (emptyRepo) CountScansByStatus(context.Context) (map[db.ScanStatus]int64, error) {
	return map[db.ScanStatus]int64{}, nil
}

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) (*Server, *mocks.MockAdapter) {
	t.Helper()

	cfg := config.Default()
	cfg.API.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	orch := orchestrator.New(emptyRepo{}, adapter, nil, nil)

	websocket := handlers.NewWebSocketHandler(newDiscardLogger())
	t.Cleanup(websocket.Shutdown)

	prom := metrics.NewPrometheusMetrics()
	resolver := auth.NewStaticResolver(nil)

	return New(cfg, nil, orch, websocket, prom, resolver), adapter
}

func TestServerRoutes(t *testing.T) {
	server, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = false
	})
	router := server.GetRouter()

	t.Run("liveness", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/liveness", nil))

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "alive")
	})

	t.Run("version", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/version", nil))

		require.Equal(t, http.StatusOK, recorder.Code)

		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Equal(t, "scandash", response["service"])
	})

	t.Run("health without database", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "not configured")
	})

	t.Run("metrics", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/metrics", nil))
		assert.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("index", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))

		require.Equal(t, http.StatusOK, recorder.Code)
		assert.Contains(t, recorder.Body.String(), "/api/v1/scans")
	})

	t.Run("list scans", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/scans", nil))

		require.Equal(t, http.StatusOK, recorder.Code)

		var response handlers.PaginatedResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
		assert.Zero(t, response.Pagination.TotalItems)
	})

	t.Run("unknown route", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/nope", nil))
		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}

func TestServerAuthPolicy(t *testing.T) {
	server, _ := newTestServer(t, nil)
	router := server.GetRouter()

	t.Run("mutation without token rejected", func(t *testing.T) {
		body := strings.NewReader(`{"target_url":"https://example.com"}`)
		req := httptest.NewRequest("POST", "/api/v1/scans", body)
		req.Header.Set("Content-Type", "application/json")

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("read without token rejected", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/scans", nil))
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("read with rejected token rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/issues", nil)
		req.Header.Set("Authorization", "Bearer sdt_totally_invalid")

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("open endpoints stay open", func(t *testing.T) {
		for _, path := range []string{"/api/v1/health", "/api/v1/liveness", "/api/v1/version", "/api/v1/metrics"} {
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest("GET", path, nil))
			assert.Equal(t, http.StatusOK, recorder.Code, path)
		}
	})
}

func TestServerAuthDisabled(t *testing.T) {
	server, adapter := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = false
	})
	router := server.GetRouter()

	adapter.EXPECT().Start(gomock.Any(), "https://example.com", gomock.Any()).
		Return(&engine.StartResult{EngineScanID: "9", Accepted: true}, nil)

	body := strings.NewReader(`{"target_url":"https://example.com"}`)
	req := httptest.NewRequest("POST", "/api/v1/scans", body)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusCreated, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"created_by":"anonymous"`)
}

func TestServerContentTypeEnforced(t *testing.T) {
	server, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = false
	})
	router := server.GetRouter()

	body := strings.NewReader(`{"target_url":"https://example.com"}`)
	req := httptest.NewRequest("POST", "/api/v1/scans", body)
	req.Header.Set("Content-Type", "text/plain")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, recorder.Code)
}

func TestServerAddress(t *testing.T) {
	server, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.API.ListenAddr = "127.0.0.1"
		cfg.API.Port = 9999
	})

	assert.Equal(t, "127.0.0.1:9999", server.GetAddress())
}
