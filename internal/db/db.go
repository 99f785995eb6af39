// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and the ledger schema migration.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seevents/event-notifier/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Migrate applies the ledger table and the change-feed trigger. Idempotent.
// The event, user and membership tables belong to the CRUD service and are
// never created here.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Statements returns the prepared statement names and SQL registered on every
// connection. Exposed for tests.
func Statements() map[string]string {
	return map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Window scan
		"upcoming_events": `SELECT id, name, category, start_time, end_time, community_id, active, deleted
			FROM events_table
			WHERE active = true AND deleted = false
			  AND start_time >= $1 AND start_time <= $2
			ORDER BY start_time`,
		"event_by_id": `SELECT id, name, category, start_time, end_time, community_id, active, deleted
			FROM events_table WHERE id = $1`,

		// Audience sources
		"event_going_users": `SELECT u.id, COALESCE(u.fcm_token, '')
			FROM users_table u JOIN event_going g ON g.user_id = u.id
			WHERE g.event_id = $1`,
		"category_subscribers": `SELECT u.id, COALESCE(u.fcm_token, '')
			FROM users_table u JOIN user_notification_preferences p ON p.user_id = u.id
			WHERE p.filter_type = $1`,
		"community_member_users": `SELECT u.id, COALESCE(u.fcm_token, '')
			FROM users_table u JOIN community_members m ON m.user_id = u.id
			WHERE m.community_id = $1`,

		// Ledger
		"ledger_claim": `INSERT INTO notified_events (event_id, event_end, notified_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (event_id) DO NOTHING`,
		"ledger_release": "DELETE FROM notified_events WHERE event_id = $1",
		"ledger_record": `UPDATE notified_events SET tokens = $2, sent = $3, failed = $4
			WHERE event_id = $1`,
		"ledger_lookup": `SELECT event_id, notified_at, event_end, tokens, sent, failed
			FROM notified_events WHERE event_id = $1`,
		"ledger_prune": "DELETE FROM notified_events WHERE event_end < $1",
	}
}

// registerPreparedStatements registers all statements the scheduler and the
// ops API use. Prepared statements eliminate parse overhead on every tick.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	for name, sql := range Statements() {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
