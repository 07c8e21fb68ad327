package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scandash/scandash/internal/api"
	"github.com/scandash/scandash/internal/api/handlers"
	"github.com/scandash/scandash/internal/auth"
	"github.com/scandash/scandash/internal/config"
	"github.com/scandash/scandash/internal/db"
	"github.com/scandash/scandash/internal/engine"
	"github.com/scandash/scandash/internal/logging"
	"github.com/scandash/scandash/internal/metrics"
	"github.com/scandash/scandash/internal/orchestrator"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scandash API server",
	Long: `Run the scandash API server in the foreground. The server connects
to PostgreSQL, applies pending migrations, starts the reconciliation loop,
and serves the dashboard API until interrupted.`,
	Example: `  scandash serve
  scandash serve --config /etc/scandash/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.Default()
	logger.Info("Starting scandash", "version", version)

	database, err := db.ConnectAndMigrate(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logger.Error("Failed to close database", "error", closeErr)
		}
	}()

	// Read-path degradation wraps the engine adapter once, here; every
	// consumer downstream sees the same policy.
	adapter := engine.NewDegraded(engine.NewZAPAdapter(cfg.Engine, logger), logger)

	registry := metrics.NewRegistry()
	prom := metrics.NewPrometheusMetrics()

	websocket := handlers.NewWebSocketHandler(logger.Logger)
	orch := orchestrator.New(database, adapter, logger, registry,
		orchestrator.WithProgressSink(websocket))

	reconciler := orchestrator.NewReconciler(orch, cfg.Reconcile)
	if err := reconciler.Start(); err != nil {
		return fmt.Errorf("starting reconciler: %w", err)
	}
	defer reconciler.Stop()

	resolver := auth.NewStaticResolver(cfg.Auth.Tokens)

	server := api.New(cfg, database, orch, websocket, prom, resolver)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("API server: %w", err)
	}

	logger.Info("scandash stopped")
	return nil
}
