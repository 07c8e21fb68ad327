// Package api provides the HTTP REST API for the scandash scan dashboard.
// It exposes endpoints for scan lifecycle control, finding retrieval,
// exports, summary statistics, and a WebSocket stream of live updates.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/scandash/scandash/internal/api/handlers"
	"github.com/scandash/scandash/internal/api/middleware"
	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/config"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/logging"
	"github.com/scandash/scandash/internal/metrics"
	"github.com/scandash/scandash/internal/orchestrator"
)

const healthCheckTimeout = 5 * time.Second

// Version is the service version reported by the version endpoint. Set at
// build time via -ldflags.
var Version = "dev"

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	database   *db.DB
	orch       *orchestrator.Orchestrator
	websocket  *handlers.WebSocketHandler
	prom       *metrics.PrometheusMetrics
	logger     *slog.Logger
	startTime  time.Time
}

// New creates a new API server instance wired to the orchestrator.
func New(
	cfg *config.Config,
	database *db.DB,
	orch *orchestrator.Orchestrator,
	websocket *handlers.WebSocketHandler,
	prom *metrics.PrometheusMetrics,
	resolver auth.Resolver,
) *Server {
	logger := logging.Default().With("component", "api")

	server := &Server{
		router:    mux.NewRouter(),
		config:    cfg,
		database:  database,
		orch:      orch,
		websocket: websocket,
		prom:      prom,
		logger:    logger,
		startTime: time.Now(),
	}

	server.setupMiddleware(resolver)
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(cfg.API.Port)),
		Handler:      server.router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	return server
}

// Start starts the API server and blocks until the context is canceled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server",
		"address", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.API.ShutdownTimeout)
	defer cancel()

	s.websocket.Shutdown()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/liveness", s.livenessHandler).Methods("GET")
	api.HandleFunc("/health", s.healthHandler).Methods("GET")
	api.HandleFunc("/version", s.versionHandler).Methods("GET")
	api.Handle("/metrics", s.prom.Handler()).Methods("GET")

	logger := s.logger
	scanHandler := handlers.NewScanHandler(s.orch, logger)
	issueHandler := handlers.NewIssueHandler(s.orch, logger)
	exportHandler := handlers.NewExportHandler(s.orch, logger)
	statsHandler := handlers.NewStatsHandler(s.orch, logger)

	// Scan lifecycle
	api.HandleFunc("/scans", scanHandler.StartScan).Methods("POST")
	api.HandleFunc("/scans", scanHandler.ListScans).Methods("GET")
	api.HandleFunc("/scans/active", scanHandler.ListActiveScans).Methods("GET")
	api.HandleFunc("/scans/{id}/progress", scanHandler.GetProgress).Methods("GET")
	api.HandleFunc("/scans/{id}/pause", scanHandler.PauseScan).Methods("POST")
	api.HandleFunc("/scans/{id}/resume", scanHandler.ResumeScan).Methods("POST")
	api.HandleFunc("/scans/{id}/stop", scanHandler.StopScan).Methods("POST")

	// Findings
	api.HandleFunc("/issues", issueHandler.ListIssues).Methods("GET")
	api.HandleFunc("/export/{format}", exportHandler.ExportIssues).Methods("GET")
	api.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")

	// Live updates
	api.HandleFunc("/scans/ws", s.websocket.ScanUpdates)

	// Root index for API clients
	s.router.HandleFunc("/", s.indexHandler).Methods("GET")
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware(resolver auth.Resolver) {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Metrics(s.prom))

	if s.config.API.CORS.Enabled {
		s.router.Use(gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(s.config.API.CORS.AllowedOrigins),
			gorillahandlers.AllowedHeaders(s.config.API.CORS.AllowedHeaders),
			gorillahandlers.AllowedMethods(s.config.API.CORS.AllowedMethods),
		))
	}

	if s.config.API.RateLimit.Enabled {
		s.router.Use(middleware.RateLimit(
			s.config.API.RateLimit.RequestsPerSecond, time.Second, s.logger))
	}

	if s.config.IsAuthEnabled() {
		s.router.Use(middleware.BearerAuth(resolver, s.logger))
	} else {
		s.router.Use(middleware.AnonymousCaller())
	}

	s.router.Use(middleware.ContentType())
	s.router.Use(middleware.MaxBodySize(s.config.API.MaxRequestSize))
}

// indexHandler returns API information for root requests.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "scandash API",
		"version": "v1",
		"endpoints": map[string]string{
			"scans":    "/api/v1/scans",
			"active":   "/api/v1/scans/active",
			"issues":   "/api/v1/issues",
			"stats":    "/api/v1/stats",
			"health":   "/api/v1/health",
			"liveness": "/api/v1/liveness",
			"updates":  "/api/v1/scans/ws",
		},
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// livenessHandler provides a liveness check without dependency probes.
func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// healthHandler reports overall service health including the database.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string)

	if s.database != nil {
		if err := s.database.Ping(ctx); err != nil {
			status = "unhealthy"
			checks["database"] = "failed: " + err.Error()
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not configured"
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, r, statusCode, response)
}

// versionHandler provides version information.
func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"version":   Version,
		"service":   "scandash",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method)
	}
}
