package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventInWindow_Boundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	window := 10 * time.Minute

	cases := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"exactly now", now, true},
		{"exactly window end", now.Add(window), true},
		{"inside", now.Add(3 * time.Minute), true},
		{"already started", now.Add(-time.Second), false},
		{"past window", now.Add(window + time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := Event{StartTime: tc.start}
			assert.Equal(t, tc.want, ev.InWindow(now, window))
		})
	}
}

func TestScan_FiltersAndOrders(t *testing.T) {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	src := newFakeSource()

	inactive := testEvent(3, "Inactive", "Music", now.Add(2*time.Minute), nil)
	inactive.Active = false
	deleted := testEvent(4, "Deleted", "Music", now.Add(2*time.Minute), nil)
	deleted.Deleted = true

	src.events = []Event{
		testEvent(1, "Later", "Music", now.Add(9*time.Minute), nil),
		testEvent(2, "Sooner", "Music", now.Add(1*time.Minute), nil),
		inactive,
		deleted,
		testEvent(5, "Too late", "Music", now.Add(11*time.Minute), nil),
		testEvent(6, "Started", "Music", now.Add(-time.Minute), nil),
	}

	events, err := NewScanner(src, 10*time.Minute, time.Second).Scan(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].ID)
	assert.Equal(t, int64(1), events[1].ID)
}

func TestScan_SourceError(t *testing.T) {
	src := newFakeSource()
	src.scanErr = errors.New("connection refused")

	_, err := NewScanner(src, 10*time.Minute, time.Second).Scan(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, src.scanErr)
}

func TestScan_Empty(t *testing.T) {
	events, err := NewScanner(newFakeSource(), 10*time.Minute, 0).Scan(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, events)
}
