package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seevents/event-notifier/internal/metrics"
)

// PipelineConfig holds the timing knobs of one cycle.
type PipelineConfig struct {
	Lookahead       time.Duration
	QueryTimeout    time.Duration
	DispatchTimeout time.Duration
	Workers         int
}

// RunOptions alters a single cycle.
type RunOptions struct {
	// DryRun resolves audiences and logs them without claiming the ledger
	// or contacting the gateway.
	DryRun bool
}

// Pipeline runs Scan → Resolve → Collect → Dispatch for every event in the
// window. Events are independent and processed by a bounded worker pool.
type Pipeline struct {
	source     Source
	ledger     Ledger
	scanner    *Scanner
	resolver   *Resolver
	dispatcher *Dispatcher
	workers    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewPipeline wires the stages together.
func NewPipeline(source Source, sender Sender, ledger Ledger, cfg PipelineConfig, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Pipeline{
		source:     source,
		ledger:     ledger,
		scanner:    NewScanner(source, cfg.Lookahead, cfg.QueryTimeout),
		resolver:   NewResolver(source, cfg.QueryTimeout),
		dispatcher: NewDispatcher(sender, ledger, cfg.DispatchTimeout, m, logger),
		workers:    workers,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// RunCycle scans the window once and notifies every due event. The returned
// error covers only the scan; per-event failures are counted in the result
// and never abort the other events.
func (p *Pipeline) RunCycle(ctx context.Context, opts RunOptions) (CycleResult, error) {
	start := p.now()
	result := CycleResult{CycleID: uuid.NewString(), StartedAt: start}
	logger := p.logger.With("cycle_id", result.CycleID)

	events, err := p.scanner.Scan(ctx, start)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Duration = time.Since(start)
		p.metrics.ObserveCycle("error", result.Duration)
		return result, err
	}

	result.EventsFound = len(events)
	p.metrics.EventsScanned(len(events))
	if len(events) == 0 {
		logger.Debug("No events starting in window", "lookahead", p.scanner.Lookahead())
		result.Duration = time.Since(start)
		p.metrics.ObserveCycle("ok", result.Duration)
		return result, nil
	}
	logger.Info("Found upcoming events", "count", len(events), "dry_run", opts.DryRun)

	// Worker pool: one channel of event indexes, N workers. Each worker
	// writes only its own slot, so outcomes keep scan order.
	workers := min(p.workers, len(events))
	outcomes := make([]Outcome, len(events))

	ch := make(chan int, len(events))
	for i := range events {
		ch <- i
	}
	close(ch)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				if err := ctx.Err(); err != nil {
					outcomes[i] = Outcome{EventID: events[i].ID, Status: StatusFailed, Error: err.Error()}
					continue
				}
				outcomes[i] = p.processEvent(ctx, events[i], opts, logger)
			}
		}()
	}
	wg.Wait()

	for _, o := range outcomes {
		result.add(o)
	}
	result.Duration = time.Since(start)

	status := "ok"
	if result.Failed > 0 {
		status = "partial"
	}
	p.metrics.ObserveCycle(status, result.Duration)
	logger.Info("Notification cycle complete", "summary", result.Summary())
	return result, nil
}

// processEvent runs one event through the pipeline. Panics are contained
// here because they would otherwise kill the process from a worker goroutine.
func (p *Pipeline) processEvent(ctx context.Context, ev Event, opts RunOptions, logger *slog.Logger) (out Outcome) {
	start := time.Now()
	out = Outcome{EventID: ev.ID}
	logger = logger.With("event_id", ev.ID)

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("event processing panicked", "panic", r)
		}
		out.Duration = time.Since(start)
		p.metrics.Dispatch(string(out.Status))
	}()

	recipients, err := p.resolver.Resolve(ctx, ev)
	if err != nil {
		logger.Warn("resolve audience failed", "error", err)
		out.Status = StatusFailed
		out.Error = err.Error()
		return out
	}
	out.Audience = len(recipients)
	p.metrics.ObserveAudience(len(recipients))
	if len(recipients) == 0 {
		out.Status = StatusNoAudience
		return out
	}

	tokens := CollectTokens(recipients)
	out.Tokens = len(tokens)
	if len(tokens) == 0 {
		logger.Debug("No push tokens in audience", "audience", len(recipients))
		out.Status = StatusNoTokens
		return out
	}

	if opts.DryRun {
		logger.Info("Dry run: would notify event",
			"name", ev.Name, "audience", len(recipients), "tokens", len(tokens))
		out.Status = StatusDryRun
		return out
	}

	dispatched, err := p.dispatcher.Dispatch(ctx, ev, tokens)
	dispatched.Audience = out.Audience
	out = dispatched
	switch {
	case err != nil:
		logger.Warn("dispatch failed", "tokens", len(tokens), "error", err)
	case out.Status == StatusAlreadyNotified:
		logger.Debug("Event already notified")
	default:
		logger.Info("Event start notifications sent",
			"audience", out.Audience, "tokens", out.Tokens, "sent", out.Sent, "failed", out.Failed)
	}
	return out
}

// --------------------------------------------------------------------------
// Preview
// --------------------------------------------------------------------------

// Preview is a dry-run view of one event's audience.
type Preview struct {
	Event      Event
	Eligible   bool
	InWindow   bool
	Recipients []Recipient
	Tokens     int
	Ledger     *LedgerEntry
}

// Preview resolves the audience of eventID without dispatching or writing
// the ledger. The event does not need to be inside the window.
func (p *Pipeline) Preview(ctx context.Context, eventID int64) (*Preview, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.resolver.timeout)
	ev, err := p.source.EventByID(lookupCtx, eventID)
	cancel()
	if err != nil {
		return nil, err
	}

	recipients, err := p.resolver.Resolve(ctx, *ev)
	if err != nil {
		return nil, err
	}

	entry, err := p.ledger.Lookup(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("ledger lookup: %w", err)
	}

	return &Preview{
		Event:      *ev,
		Eligible:   ev.Eligible(),
		InWindow:   ev.InWindow(p.now(), p.scanner.Lookahead()),
		Recipients: recipients,
		Tokens:     len(CollectTokens(recipients)),
		Ledger:     entry,
	}, nil
}
