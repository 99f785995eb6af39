package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/seevents")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 10*time.Minute, cfg.LookaheadWindow)
	assert.Equal(t, 4, cfg.DispatchWorkers)
	assert.Equal(t, LedgerPostgres, cfg.LedgerBackend)
	assert.Equal(t, GatewayFCM, cfg.PushGateway)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_DurationOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/seevents")
	t.Setenv("SCAN_INTERVAL", "90s")
	t.Setenv("LOOKAHEAD_WINDOW", "600")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.ScanInterval)
	assert.Equal(t, 10*time.Minute, cfg.LookaheadWindow)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ScanInterval:    time.Minute,
			LookaheadWindow: time.Minute,
			QueryTimeout:    time.Second,
			DispatchTimeout: time.Second,
			DispatchWorkers: 1,
			LedgerBackend:   LedgerMemory,
			PushGateway:     GatewayLog,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero interval", func(c *Config) { c.ScanInterval = 0 }, "SCAN_INTERVAL"},
		{"negative lookahead", func(c *Config) { c.LookaheadWindow = -time.Second }, "LOOKAHEAD_WINDOW"},
		{"no workers", func(c *Config) { c.DispatchWorkers = 0 }, "DISPATCH_WORKERS"},
		{"redis without url", func(c *Config) { c.LedgerBackend = LedgerRedis }, "REDIS_URL"},
		{"unknown ledger", func(c *Config) { c.LedgerBackend = "etcd" }, "LEDGER_BACKEND"},
		{"amqp without url", func(c *Config) { c.PushGateway = GatewayAMQP }, "AMQP_URL"},
		{"unknown gateway", func(c *Config) { c.PushGateway = "apns" }, "PUSH_GATEWAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNeedsSchema(t *testing.T) {
	tests := []struct {
		ledger   string
		listener bool
		want     bool
	}{
		{LedgerPostgres, false, true},
		{LedgerRedis, true, true},
		{LedgerMemory, true, true},
		{LedgerRedis, false, false},
		{LedgerMemory, false, false},
	}
	for _, tt := range tests {
		cfg := &Config{LedgerBackend: tt.ledger, ListenerEnabled: tt.listener}
		assert.Equal(t, tt.want, cfg.NeedsSchema(), "%s listener=%v", tt.ledger, tt.listener)
	}
}
