package notifications

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedger_ConcurrentClaimHasOneWinner(t *testing.T) {
	ledger := NewMemoryLedger()
	ev := testEvent(1, "A", "Music", time.Now(), nil)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Claim(context.Background(), ev)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryLedger_ReleaseAllowsReclaim(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	ev := testEvent(1, "A", "Music", time.Now(), nil)

	ok, err := ledger.Claim(ctx, ev)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, ledger.Release(ctx, 1))

	ok, err = ledger.Claim(ctx, ev)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLedger_RecordIgnoresUnclaimed(t *testing.T) {
	ledger := NewMemoryLedger()
	require.NoError(t, ledger.Record(context.Background(), Outcome{EventID: 5, Sent: 3}))
	assert.Equal(t, 0, ledger.Len())
}

func TestMemoryLedger_Prune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()

	old := testEvent(1, "Old", "Music", now.Add(-72*time.Hour), nil)
	recent := testEvent(2, "Recent", "Music", now.Add(-time.Hour), nil)
	for _, ev := range []Event{old, recent} {
		_, err := ledger.Claim(ctx, ev)
		require.NoError(t, err)
	}

	n, err := ledger.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entry, err := ledger.Lookup(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, entry)
}

func TestRedisLedger_KeyAndTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := &RedisLedger{retention: 7 * 24 * time.Hour, now: func() time.Time { return now }}

	assert.Equal(t, "seevents:notified:42", redisKey(42))

	ev := Event{EndTime: now.Add(2 * time.Hour)}
	assert.Equal(t, 7*24*time.Hour+2*time.Hour, l.ttlFor(ev))

	// Long-past event still keeps the claim for the minimum TTL.
	ev = Event{EndTime: now.Add(-30 * 24 * time.Hour)}
	assert.Equal(t, minRedisTTL, l.ttlFor(ev))
}
