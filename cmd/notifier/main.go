// Command notifier is the event-start push notification service.
//
// It scans for events starting within the lookahead window once at
// start-up and then every SCAN_INTERVAL, and serves a small ops API.
//
// Usage:
//
//	notifier
//	API_PORT=8080 PUSH_GATEWAY=log notifier

// @title Event Start Notifier API
// @version 1.0.0
// @description Ops surface of the event-start notifier: health, metrics, manual scan trigger, audience preview and ledger lookup.
// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/seevents/event-notifier/internal/api"
	"github.com/seevents/event-notifier/internal/api/handler"
	"github.com/seevents/event-notifier/internal/app"
	"github.com/seevents/event-notifier/internal/cache"
	"github.com/seevents/event-notifier/internal/config"
	"github.com/seevents/event-notifier/internal/db"
	"github.com/seevents/event-notifier/internal/listener"
	"github.com/seevents/event-notifier/internal/maintenance"
	"github.com/seevents/event-notifier/internal/notifications"

	_ "github.com/seevents/event-notifier/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database and build the pipeline
	logger.Info("Connecting to database...")
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	if cfg.NeedsSchema() {
		if err := db.Migrate(ctx, a.Pool.Pool); err != nil {
			logger.Error("Failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("Schema applied",
			"ledger_backend", cfg.LedgerBackend,
			"listener", cfg.ListenerEnabled)
	}

	// Initialize cache
	appCache := cache.New(ctx, cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Scheduler: one cycle now, then every SCAN_INTERVAL, never overlapping
	scheduler := notifications.NewScheduler(cfg.ScanInterval, cfg.ShutdownGrace,
		func(ctx context.Context) (notifications.CycleResult, error) {
			result, err := a.Pipeline.RunCycle(ctx, notifications.RunOptions{})
			if result.Sent > 0 {
				appCache.InvalidatePrefix(handler.LedgerCachePrefix)
				appCache.InvalidatePrefix(handler.AudienceCachePrefix)
			}
			return result, err
		}, logger)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("Scheduler failed", "error", err)
		}
	}()

	// LISTEN/NOTIFY consumer: schedule changes inside the window trigger a scan
	if cfg.ListenerEnabled {
		go listener.New(cfg.DatabaseURL, cfg.LookaheadWindow, scheduler, logger).Start(ctx)
	} else {
		logger.Info("Schedule listener disabled (LISTENER_ENABLED=false)")
	}

	// Maintenance tickers (ledger pruning)
	go maintenance.Start(ctx, a.Ledger, maintenance.Config{
		PruneInterval: cfg.PruneInterval,
		Retention:     cfg.LedgerRetention,
	}, logger)

	// Create router
	router := api.NewRouter(handler.Deps{
		DB:        a.Pool,
		Scheduler: scheduler,
		Previewer: a.Pipeline,
		Ledger:    a.Ledger,
	}, appCache, a.Registry, cfg, logger)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting event notifier",
			"addr", addr,
			"environment", cfg.Environment,
			"interval", cfg.ScanInterval,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	// An in-flight cycle gets SHUTDOWN_GRACE to finish recording its sends
	<-schedulerDone
	logger.Info("Server stopped")
}
