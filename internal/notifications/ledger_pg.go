package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger stores the ledger in the notified_events table. The primary key
// on event_id makes Claim safe across replicas.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger returns a Postgres-backed Ledger.
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

func (l *PGLedger) Claim(ctx context.Context, ev Event) (bool, error) {
	tag, err := l.pool.Exec(ctx, "ledger_claim", ev.ID, ev.EndTime)
	if err != nil {
		return false, fmt.Errorf("claim event %d: %w", ev.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PGLedger) Release(ctx context.Context, eventID int64) error {
	if _, err := l.pool.Exec(ctx, "ledger_release", eventID); err != nil {
		return fmt.Errorf("release event %d: %w", eventID, err)
	}
	return nil
}

func (l *PGLedger) Record(ctx context.Context, o Outcome) error {
	if _, err := l.pool.Exec(ctx, "ledger_record", o.EventID, o.Tokens, o.Sent, o.Failed); err != nil {
		return fmt.Errorf("record event %d: %w", o.EventID, err)
	}
	return nil
}

func (l *PGLedger) Lookup(ctx context.Context, eventID int64) (*LedgerEntry, error) {
	var e LedgerEntry
	err := l.pool.QueryRow(ctx, "ledger_lookup", eventID).Scan(
		&e.EventID, &e.NotifiedAt, &e.EventEnd, &e.Tokens, &e.Sent, &e.Failed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup event %d: %w", eventID, err)
	}
	return &e, nil
}

func (l *PGLedger) Prune(ctx context.Context, endedBefore time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx, "ledger_prune", endedBefore)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}
