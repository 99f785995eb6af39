package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes ledger entries for events that ended before a cutoff.
// Implemented by every notifications.Ledger.
type Pruner interface {
	Prune(ctx context.Context, endedBefore time.Time) (int64, error)
}

// PruneLedger removes ledger entries whose event ended more than retention
// before now. Also called from notifyctl after manual cleanups.
func PruneLedger(ctx context.Context, ledger Pruner, retention time.Duration, now time.Time, logger *slog.Logger) (int64, error) {
	start := time.Now()
	cutoff := now.Add(-retention)

	n, err := ledger.Prune(ctx, cutoff)
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logger.Warn("Prune: failed to delete expired ledger entries",
			"cutoff", cutoff, "duration", dur, "error", err)
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	if n > 0 {
		logger.Info("Prune: deleted expired ledger entries", "count", n, "duration", dur)
	}
	return n, nil
}
