// Package app assembles the notification pipeline from configuration.
// Shared by cmd/notifier and cmd/notifyctl so both run the same stack.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/seevents/event-notifier/internal/config"
	"github.com/seevents/event-notifier/internal/db"
	"github.com/seevents/event-notifier/internal/metrics"
	"github.com/seevents/event-notifier/internal/notifications"
)

// App holds the long-lived dependencies of one process.
type App struct {
	Pool     *db.Pool
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    *notifications.Store
	Ledger   notifications.Ledger
	Sender   notifications.Sender
	Pipeline *notifications.Pipeline

	closers []func() error
	logger  *slog.Logger
}

// New connects to Postgres and builds the ledger, the sender and the
// pipeline selected by cfg. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a := &App{Pool: pool, logger: logger}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	ledger, closeLedger, err := NewLedger(ctx, cfg, pool)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger = ledger
	a.closers = append(a.closers, closeLedger)

	sender, closeSender, err := NewSender(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sender = sender
	a.closers = append(a.closers, closeSender)

	a.Store = notifications.NewStore(pool.Pool)
	a.Pipeline = notifications.NewPipeline(a.Store, a.Sender, a.Ledger, notifications.PipelineConfig{
		Lookahead:       cfg.LookaheadWindow,
		QueryTimeout:    cfg.QueryTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
		Workers:         cfg.DispatchWorkers,
	}, a.Metrics, logger)

	logger.Info("Notification pipeline ready",
		"ledger", cfg.LedgerBackend,
		"gateway", cfg.PushGateway,
		"lookahead", cfg.LookaheadWindow,
		"workers", cfg.DispatchWorkers)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

func noop() error { return nil }

// NewLedger returns the ledger backend named by cfg.LedgerBackend.
func NewLedger(ctx context.Context, cfg *config.Config, pool *db.Pool) (notifications.Ledger, func() error, error) {
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		l, err := notifications.NewRedisLedger(ctx, cfg.RedisURL, cfg.LedgerRetention)
		if err != nil {
			return nil, nil, fmt.Errorf("redis ledger: %w", err)
		}
		return l, l.Close, nil
	case config.LedgerMemory:
		return notifications.NewMemoryLedger(), noop, nil
	case config.LedgerPostgres:
		if pool == nil {
			return nil, nil, fmt.Errorf("postgres ledger requires a database pool")
		}
		return notifications.NewPGLedger(pool.Pool), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

// NewSender returns the push gateway named by cfg.PushGateway. FCM without
// a credentials file or project id falls back to logging, so a local
// environment still runs the whole pipeline.
func NewSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notifications.Sender, func() error, error) {
	switch cfg.PushGateway {
	case config.GatewayFCM:
		if cfg.FirebaseCredentialsFile == "" && cfg.FirebaseProjectID == "" {
			logger.Warn("FCM not configured (no FIREBASE_CREDENTIALS_FILE or FIREBASE_PROJECT_ID), logging pushes instead")
			return notifications.NewLogSender(logger), noop, nil
		}
		s, err := notifications.NewFCMSender(ctx, cfg.FirebaseCredentialsFile, cfg.FirebaseProjectID, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("fcm sender: %w", err)
		}
		return s, noop, nil
	case config.GatewayAMQP:
		s, err := notifications.NewAMQPSender(cfg.AMQPURL, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp sender: %w", err)
		}
		return s, s.Close, nil
	case config.GatewayLog:
		return notifications.NewLogSender(logger), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown push gateway %q", cfg.PushGateway)
	}
}
