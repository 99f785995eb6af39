package notifications

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Scanner selects events whose start time falls inside the lookahead window.
type Scanner struct {
	source    Source
	lookahead time.Duration
	timeout   time.Duration
}

// NewScanner returns a Scanner over source. A zero timeout uses the default.
func NewScanner(source Source, lookahead, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Scanner{source: source, lookahead: lookahead, timeout: timeout}
}

// Lookahead returns the configured window length.
func (s *Scanner) Lookahead() time.Duration { return s.lookahead }

// Scan returns eligible events with now <= start <= now+lookahead, ordered
// by start time ascending. The source query already filters; rows that
// slip through (clock skew between app and database) are dropped here.
func (s *Scanner) Scan(ctx context.Context, now time.Time) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.source.UpcomingEvents(ctx, now, now.Add(s.lookahead))
	if err != nil {
		return nil, fmt.Errorf("scan window: %w", err)
	}

	events := rows[:0]
	for _, e := range rows {
		if e.Eligible() && e.InWindow(now, s.lookahead) {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events, nil
}
