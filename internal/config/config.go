// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/notifier and cmd/notifyctl.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Backend names
// --------------------------------------------------------------------------

const (
	LedgerPostgres = "postgres"
	LedgerRedis    = "redis"
	LedgerMemory   = "memory"

	GatewayFCM  = "fcm"
	GatewayAMQP = "amqp"
	GatewayLog  = "log"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Scheduler
	ScanInterval    time.Duration
	LookaheadWindow time.Duration
	QueryTimeout    time.Duration
	DispatchTimeout time.Duration
	DispatchWorkers int
	ShutdownGrace   time.Duration

	// Ledger
	LedgerBackend   string // postgres, redis, memory
	LedgerRetention time.Duration
	PruneInterval   time.Duration
	RedisURL        string

	// Push gateway
	PushGateway             string // fcm, amqp, log
	FirebaseCredentialsFile string
	FirebaseProjectID       string
	AMQPURL                 string
	AMQPQueue               string

	// Change feed
	ListenerEnabled bool

	// Ops HTTP server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	LogLevel    slog.Level

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		ScanInterval:    envDuration("SCAN_INTERVAL", 5*time.Minute),
		LookaheadWindow: envDuration("LOOKAHEAD_WINDOW", 10*time.Minute),
		QueryTimeout:    envDuration("QUERY_TIMEOUT", 10*time.Second),
		DispatchTimeout: envDuration("DISPATCH_TIMEOUT", 15*time.Second),
		DispatchWorkers: envInt("DISPATCH_WORKERS", 4),
		ShutdownGrace:   envDuration("SHUTDOWN_GRACE", 20*time.Second),

		LedgerBackend:   strings.ToLower(envOr("LEDGER_BACKEND", LedgerPostgres)),
		LedgerRetention: envDuration("LEDGER_RETENTION", 24*time.Hour),
		PruneInterval:   envDuration("PRUNE_INTERVAL", 30*time.Minute),
		RedisURL:        envOr("REDIS_URL", ""),

		PushGateway:             strings.ToLower(envOr("PUSH_GATEWAY", GatewayFCM)),
		FirebaseCredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),
		FirebaseProjectID:       envOr("FIREBASE_PROJECT_ID", ""),
		AMQPURL:                 envOr("AMQP_URL", ""),
		AMQPQueue:               envOr("AMQP_QUEUE", "push_noti_events"),

		ListenerEnabled: envBool("LISTENER_ENABLED", true),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8080)),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envLevel("LOG_LEVEL", slog.LevelInfo),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:8081",
			"https://seevents.expo.app",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	}
	if c.LookaheadWindow <= 0 {
		return fmt.Errorf("LOOKAHEAD_WINDOW must be positive, got %s", c.LookaheadWindow)
	}
	if c.QueryTimeout <= 0 || c.DispatchTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT and DISPATCH_TIMEOUT must be positive")
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("DISPATCH_WORKERS must be at least 1, got %d", c.DispatchWorkers)
	}

	switch c.LedgerBackend {
	case LedgerPostgres, LedgerMemory:
	case LedgerRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LEDGER_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.LedgerBackend)
	}

	switch c.PushGateway {
	case GatewayFCM, GatewayLog:
	case GatewayAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when PUSH_GATEWAY=amqp")
		}
	default:
		return fmt.Errorf("unknown PUSH_GATEWAY %q", c.PushGateway)
	}
	return nil
}

// NeedsSchema reports whether start-up must apply schema.sql: the postgres
// ledger needs its table and the listener needs the change-feed trigger.
func (c *Config) NeedsSchema() bool {
	return c.LedgerBackend == LedgerPostgres || c.ListenerEnabled
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s", "5m") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func envLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
