package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a11y-lens/backend/config"
	"github.com/a11y-lens/backend/logging"
	"github.com/a11y-lens/backend/middleware"
	"github.com/a11y-lens/backend/proxy"
	"github.com/a11y-lens/backend/server"
	"github.com/a11y-lens/backend/stats"
	"github.com/a11y-lens/backend/store"
)

// Months of statistics kept on disk
const statsRetainMonths = 12

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.Logging.Level, cfg.GinMode == gin.DebugMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	statsStorage, err := stats.NewStorage(cfg.DataDir, logger)
	if err != nil {
		return fmt.Errorf("init statistics: %w", err)
	}
	defer func() {
		if err := statsStorage.Shutdown(); err != nil {
			logger.Warn("flushing statistics failed", zap.Error(err))
		}
	}()
	statsStorage.Cleanup(statsRetainMonths)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.StoreTTL(), cfg.Store.MaxEntries)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer results.Close()

	backend := newBackend(cfg, logger)

	srv := server.New(server.Options{
		Backend:        backend,
		Results:        results,
		Stats:          statsStorage,
		RateLimiter:    middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	return srv.Run(ctx, ":"+cfg.Port)
}

func newBackend(cfg *config.Config, logger *zap.Logger) proxy.AnalysisBackend {
	if cfg.Backend.Script != "" {
		logger.Info("using local analyzer", zap.String("script", cfg.Backend.Script))
		return &proxy.ProcessBackend{
			Script:  cfg.Backend.Script,
			Timeout: cfg.BackendTimeout(),
		}
	}

	b := proxy.NewHTTPBackend(cfg.Backend.URL, cfg.BackendTimeout())
	logger.Info("using analysis service", zap.String("endpoint", b.Endpoint()))
	return b
}
