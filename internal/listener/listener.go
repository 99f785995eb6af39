// Package listener provides a Postgres LISTEN/NOTIFY consumer for event
// schedule changes. It holds a dedicated pgx connection (not from the pool)
// listening on the `event_schedule_changed` channel.
//
// When an event is created or rescheduled into the notification window, the
// trigger in schema.sql fires pg_notify and this consumer asks the scheduler
// for an immediate cycle instead of waiting up to one interval.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	channel          = "event_schedule_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Triggerer requests an out-of-band scan. Implemented by
// notifications.Scheduler.
type Triggerer interface {
	Trigger() bool
}

// ScheduleChange is the JSON payload from pg_notify('event_schedule_changed', ...).
type ScheduleChange struct {
	EventID   int64     `json:"event_id"`
	StartTime StartTime `json:"start_time"`
	Active    bool      `json:"active"`
	Deleted   bool      `json:"deleted"`
}

// naiveLayout is how json_build_object renders a timestamp without time zone.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// StartTime decodes the start_time field. The trigger sends epoch seconds;
// RFC 3339 strings and offset-less timestamps (read as UTC, the same way
// pgx scans them) are accepted too.
type StartTime struct{ time.Time }

// UnmarshalJSON implements json.Unmarshaler.
func (t *StartTime) UnmarshalJSON(b []byte) error {
	var epoch float64
	if err := json.Unmarshal(b, &epoch); err == nil {
		sec, frac := math.Modf(epoch)
		t.Time = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("start_time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// Due reports whether the change can produce a notification in the window
// starting at now.
func (c ScheduleChange) Due(now time.Time, lookahead time.Duration) bool {
	if !c.Active || c.Deleted {
		return false
	}
	return !c.StartTime.Before(now) && !c.StartTime.After(now.Add(lookahead))
}

// Listener forwards relevant schedule changes to a Triggerer.
type Listener struct {
	dbURL     string
	lookahead time.Duration
	scheduler Triggerer
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Listener for dbURL.
func New(dbURL string, lookahead time.Duration, scheduler Triggerer, logger *slog.Logger) *Listener {
	return &Listener{
		dbURL:     dbURL,
		lookahead: lookahead,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Start opens a dedicated connection and listens on the channel. It
// reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (l *Listener) Start(ctx context.Context) {
	backoff := reconnectBackoff

	for {
		err := l.listenLoop(ctx)
		if ctx.Err() != nil {
			l.logger.Info("Schedule listener stopped (context cancelled)")
			return
		}

		l.logger.Error("Schedule listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (l *Listener) listenLoop(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	l.logger.Info("Schedule listener connected", "channel", channel)

	// A change may have been missed while disconnected.
	l.scheduler.Trigger()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.Handle(notification.Payload)
	}
}

// Handle decodes one payload and triggers a scan when the event is due.
// It returns whether a scan was requested.
func (l *Listener) Handle(payload string) bool {
	var change ScheduleChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		l.logger.Warn("Failed to parse schedule change",
			"payload", payload, "error", err)
		return false
	}

	if !change.Due(l.now(), l.lookahead) {
		l.logger.Debug("Schedule change outside window", "event_id", change.EventID)
		return false
	}

	queued := l.scheduler.Trigger()
	l.logger.Info("Schedule change in window, scan requested",
		"event_id", change.EventID,
		"start_time", change.StartTime.Time,
		"queued", queued)
	return true
}
