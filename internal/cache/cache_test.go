package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetExpire(t *testing.T) {
	c := New(testContext(t), true)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	etag := c.Set("audience:1", []byte(`{"a":1}`), time.Minute)
	data, got, ok := c.Get("audience:1")
	require.True(t, ok)
	assert.Equal(t, etag, got)
	assert.JSONEq(t, `{"a":1}`, string(data))

	now = now.Add(2 * time.Minute)
	_, _, ok = c.Get("audience:1")
	assert.False(t, ok)

	c.evict()
	assert.Equal(t, 0, c.Stats()["total_keys"])
}

func TestCache_Disabled(t *testing.T) {
	c := New(context.Background(), false)
	etag := c.Set("k", []byte("v"), time.Minute)
	assert.NotEmpty(t, etag)
	_, _, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New(testContext(t), true)
	c.Set("ledger:1", []byte("a"), time.Minute)
	c.Set("ledger:2", []byte("b"), time.Minute)
	c.Set("audience:1", []byte("c"), time.Minute)

	assert.Equal(t, 2, c.InvalidatePrefix("ledger:"))
	_, _, ok := c.Get("audience:1")
	assert.True(t, ok)
}

func TestETag(t *testing.T) {
	etag := ComputeETag([]byte("hello"))
	assert.Equal(t, etag, ComputeETag([]byte("hello")))
	assert.NotEqual(t, etag, ComputeETag([]byte("world")))

	assert.False(t, CheckETagMatch("", etag))
	assert.True(t, CheckETagMatch("*", etag))
	assert.True(t, CheckETagMatch(etag, etag))
	assert.True(t, CheckETagMatch(`W/"other", `+etag, etag))
	assert.False(t, CheckETagMatch(`W/"other"`, etag))
}

// testContext returns a context that is cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
