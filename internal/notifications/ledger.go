package notifications

import (
	"context"
	"sync"
	"time"
)

// Ledger records which events already received their start notification.
// Claim must be an atomic insert-if-absent: of any number of concurrent
// callers for the same event, exactly one gets true.
type Ledger interface {
	Claim(ctx context.Context, ev Event) (bool, error)
	Release(ctx context.Context, eventID int64) error
	Record(ctx context.Context, o Outcome) error
	Lookup(ctx context.Context, eventID int64) (*LedgerEntry, error)
	Prune(ctx context.Context, endedBefore time.Time) (int64, error)
}

// LedgerEntry is one notified event.
type LedgerEntry struct {
	EventID    int64     `json:"event_id"`
	NotifiedAt time.Time `json:"notified_at"`
	EventEnd   time.Time `json:"event_end"`
	Tokens     int       `json:"tokens"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
}

// MemoryLedger is a process-local Ledger. Suitable for a single replica or
// for tests; its contents do not survive a restart.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[int64]LedgerEntry
	now     func() time.Time
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[int64]LedgerEntry), now: time.Now}
}

func (l *MemoryLedger) Claim(_ context.Context, ev Event) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[ev.ID]; ok {
		return false, nil
	}
	l.entries[ev.ID] = LedgerEntry{EventID: ev.ID, NotifiedAt: l.now(), EventEnd: ev.EndTime}
	return true, nil
}

func (l *MemoryLedger) Release(_ context.Context, eventID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, eventID)
	return nil
}

func (l *MemoryLedger) Record(_ context.Context, o Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[o.EventID]
	if !ok {
		return nil
	}
	e.Tokens, e.Sent, e.Failed = o.Tokens, o.Sent, o.Failed
	l.entries[o.EventID] = e
	return nil
}

func (l *MemoryLedger) Lookup(_ context.Context, eventID int64) (*LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[eventID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (l *MemoryLedger) Prune(_ context.Context, endedBefore time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for id, e := range l.entries {
		if e.EventEnd.Before(endedBefore) {
			delete(l.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of claimed events.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
