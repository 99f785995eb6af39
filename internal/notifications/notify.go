// Package notifications alerts users that an event is about to start.
//
// Pipeline per cycle: scan window → resolve audience → collect tokens →
// claim ledger → multicast dispatch. A Scheduler drives one cycle at start-up
// and then on a fixed interval, never two at once.
package notifications

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	notificationTitle = "Event Starting Soon!"
	notificationType  = "EVENT_START"
	clickAction       = "OPEN_EVENT"

	defaultWorkers         = 4
	defaultQueryTimeout    = 10 * time.Second
	defaultDispatchTimeout = 15 * time.Second
	ledgerWriteTimeout     = 5 * time.Second
)

// Sentinel errors.
var (
	ErrEventNotFound  = errors.New("event not found")
	ErrNoTokens       = errors.New("no push tokens to send to")
	ErrSenderDisabled = errors.New("push sender not configured")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Event is an upcoming event row owned by the CRUD service.
type Event struct {
	ID          int64
	Name        string
	Category    string
	StartTime   time.Time
	EndTime     time.Time
	CommunityID *int64
	Active      bool
	Deleted     bool
}

// Eligible reports whether the event may be notified at all.
func (e Event) Eligible() bool {
	return e.Active && !e.Deleted
}

// InWindow reports whether the event starts within [now, now+lookahead].
func (e Event) InWindow(now time.Time, lookahead time.Duration) bool {
	return !e.StartTime.Before(now) && !e.StartTime.After(now.Add(lookahead))
}

// User is an audience candidate. An empty PushToken means no usable device.
type User struct {
	ID        string
	PushToken string
}

// Reason is a bit set naming the relations that put a user in an audience.
type Reason uint8

const (
	ReasonGoing Reason = 1 << iota
	ReasonCategory
	ReasonCommunity
)

// Has reports whether r includes flag.
func (r Reason) Has(flag Reason) bool { return r&flag != 0 }

var reasonNames = []struct {
	flag Reason
	name string
}{
	{ReasonGoing, "going"},
	{ReasonCategory, "category"},
	{ReasonCommunity, "community"},
}

// Names lists the set flags in resolution order. It is nil for an empty set.
func (r Reason) Names() []string {
	var names []string
	for _, rn := range reasonNames {
		if r.Has(rn.flag) {
			names = append(names, rn.name)
		}
	}
	return names
}

func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	return strings.Join(r.Names(), "+")
}

// Recipient is a deduplicated audience member.
type Recipient struct {
	User
	Reasons Reason
}

// Status is the per-event outcome of one cycle.
type Status string

const (
	StatusSent            Status = "sent"
	StatusAlreadyNotified Status = "already_notified"
	StatusNoAudience      Status = "no_audience"
	StatusNoTokens        Status = "no_tokens"
	StatusFailed          Status = "failed"
	StatusDryRun          Status = "dry_run"
)

// Outcome describes what happened to one event in one cycle.
type Outcome struct {
	EventID  int64
	Status   Status
	Audience int
	Tokens   int
	Sent     int
	Failed   int
	Error    string
	Duration time.Duration
}

// CycleResult tracks the outcome of one full scan cycle.
type CycleResult struct {
	CycleID      string
	StartedAt    time.Time
	EventsFound  int
	Sent         int
	Skipped      int
	NoAudience   int
	NoTokens     int
	Failed       int
	DryRun       int
	TokensSent   int
	TokensFailed int
	Duration     time.Duration
	Errors       []string
	Outcomes     []Outcome
}

// Summary returns a human-readable summary.
func (r *CycleResult) Summary() string {
	return fmt.Sprintf(
		"found=%d sent=%d skipped=%d no_audience=%d no_tokens=%d failed=%d tokens_sent=%d tokens_failed=%d dur=%s",
		r.EventsFound, r.Sent, r.Skipped, r.NoAudience, r.NoTokens, r.Failed,
		r.TokensSent, r.TokensFailed, r.Duration.Round(time.Millisecond))
}

func (r *CycleResult) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.TokensSent += o.Sent
	r.TokensFailed += o.Failed
	switch o.Status {
	case StatusSent:
		r.Sent++
	case StatusAlreadyNotified:
		r.Skipped++
	case StatusNoAudience:
		r.NoAudience++
	case StatusNoTokens:
		r.NoTokens++
	case StatusDryRun:
		r.DryRun++
	case StatusFailed:
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("event %d: %s", o.EventID, o.Error))
	}
}
