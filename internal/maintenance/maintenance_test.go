package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (p *recordingPruner) Prune(_ context.Context, endedBefore time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, endedBefore)
	return p.n, p.err
}

func (p *recordingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPruneLedger_UsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	p := &recordingPruner{n: 4}

	n, err := PruneLedger(context.Background(), p, 7*24*time.Hour, now, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), p.cutoffs[0])
}

func TestPruneLedger_WrapsError(t *testing.T) {
	p := &recordingPruner{err: errors.New("db down")}
	_, err := PruneLedger(context.Background(), p, time.Hour, time.Now(), discardLogger())
	assert.ErrorIs(t, err, p.err)
}

func TestStart_RunsPruneOnTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &recordingPruner{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		Start(ctx, p, Config{PruneInterval: 5 * time.Millisecond, Retention: time.Hour}, discardLogger())
	}()

	require.Eventually(t, func() bool { return p.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
