package listener

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() bool {
	c.n++
	return true
}

func newTestListener(tr Triggerer, now time.Time) *Listener {
	l := New("postgres://unused", 10*time.Minute, tr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return now }
	return l
}

func TestHandle_TriggersForDueEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	tr := &countingTrigger{}
	l := newTestListener(tr, now)

	ok := l.Handle(`{"event_id":7,"start_time":"2026-03-01T18:04:00+00:00","active":true,"deleted":false}`)
	assert.True(t, ok)
	assert.Equal(t, 1, tr.n)
}

func TestHandle_IgnoresIrrelevantChanges(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	tr := &countingTrigger{}
	l := newTestListener(tr, now)

	payloads := []string{
		`{"event_id":1,"start_time":"2026-03-01T20:00:00Z","active":true,"deleted":false}`,
		`{"event_id":2,"start_time":"2026-03-01T18:04:00Z","active":false,"deleted":false}`,
		`{"event_id":3,"start_time":"2026-03-01T18:04:00Z","active":true,"deleted":true}`,
		`{"event_id":4,"start_time":"2026-03-01T17:59:00Z","active":true,"deleted":false}`,
		`not json`,
	}
	for _, p := range payloads {
		assert.False(t, l.Handle(p), p)
	}
	assert.Equal(t, 0, tr.n)
}

func TestHandle_AcceptsStartTimeEncodings(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	epoch := now.Add(4 * time.Minute).Unix()

	payloads := []string{
		`{"event_id":7,"start_time":"2026-03-01T18:04:00","active":true,"deleted":false}`,
		`{"event_id":7,"start_time":"2026-03-01T18:04:00.123456","active":true,"deleted":false}`,
		fmt.Sprintf(`{"event_id":7,"start_time":%d,"active":true,"deleted":false}`, epoch),
		fmt.Sprintf(`{"event_id":7,"start_time":%d.5,"active":true,"deleted":false}`, epoch),
	}
	for _, p := range payloads {
		tr := &countingTrigger{}
		l := newTestListener(tr, now)
		assert.True(t, l.Handle(p), p)
		assert.Equal(t, 1, tr.n, p)
	}
}

func TestStartTime_OffsetLessIsUTC(t *testing.T) {
	var st StartTime
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-01T18:04:00"`), &st))
	assert.True(t, st.Equal(time.Date(2026, 3, 1, 18, 4, 0, 0, time.UTC)))

	require.NoError(t, json.Unmarshal([]byte(`"2026-03-01T19:04:00+01:00"`), &st))
	assert.True(t, st.Equal(time.Date(2026, 3, 1, 18, 4, 0, 0, time.UTC)))

	assert.Error(t, json.Unmarshal([]byte(`"tomorrow"`), &st))
	assert.Error(t, json.Unmarshal([]byte(`true`), &st))
}
