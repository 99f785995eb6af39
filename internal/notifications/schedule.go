package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// CycleFunc runs one notification cycle.
type CycleFunc func(ctx context.Context) (CycleResult, error)

// Scheduler runs a CycleFunc once at start-up and then on a fixed interval.
// Ticks are serialized on a single goroutine: a tick that fires while a
// cycle is still running waits for it instead of overlapping.
type Scheduler struct {
	interval time.Duration
	grace    time.Duration
	fn       CycleFunc
	logger   *slog.Logger

	trigger chan struct{}

	mu      sync.Mutex
	status  SchedulerStatus
	started bool
}

// SchedulerStatus is a snapshot of the scheduler for health reporting.
type SchedulerStatus struct {
	Running   bool         `json:"running"`
	Cycles    int64        `json:"cycles"`
	LastStart time.Time    `json:"last_start,omitzero"`
	LastEnd   time.Time    `json:"last_end,omitzero"`
	NextRun   time.Time    `json:"next_run,omitzero"`
	LastError string       `json:"last_error,omitempty"`
	Last      *CycleResult `json:"-"`
}

// NewScheduler returns a Scheduler. grace bounds how long an in-flight
// cycle may keep running after the parent context is cancelled.
func NewScheduler(interval, grace time.Duration, fn CycleFunc, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		interval: interval,
		grace:    grace,
		fn:       fn,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Start blocks until ctx is cancelled and any in-flight cycle has finished.
// Intended to be called with `go`. Calling Start twice returns an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("Notification scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, "startup")
	for {
		s.setNext(time.Now().Add(s.interval))
		select {
		case <-ctx.Done():
			s.logger.Info("Notification scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx, "interval")
		case <-s.trigger:
			s.tick(ctx, "trigger")
		}
	}
}

// Trigger requests an extra cycle as soon as the current one (if any)
// finishes. Requests made while one is already pending are coalesced; the
// return value reports whether this call queued a new one.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a copy of the current scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.status.NextRun = t
	s.mu.Unlock()
}

// tick runs one cycle. The cycle context survives cancellation of ctx for
// the grace period so that a send already in progress can complete and be
// recorded.
func (s *Scheduler) tick(ctx context.Context, cause string) {
	if ctx.Err() != nil {
		return
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		if s.grace <= 0 {
			cancel()
			return
		}
		t := time.AfterFunc(s.grace, cancel)
		context.AfterFunc(workCtx, func() { t.Stop() })
	})
	defer stop()

	s.mu.Lock()
	s.status.Running = true
	s.status.LastStart = time.Now()
	s.mu.Unlock()

	result, err := s.run(workCtx)

	s.mu.Lock()
	s.status.Running = false
	s.status.LastEnd = time.Now()
	s.status.Cycles++
	s.status.Last = &result
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Notification cycle failed", "cause", cause, "error", err)
		return
	}
	s.logger.Debug("Notification cycle finished", "cause", cause, "cycle_id", result.CycleID)
}

func (s *Scheduler) run(ctx context.Context) (result CycleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return s.fn(ctx)
}
