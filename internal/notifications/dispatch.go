package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seevents/event-notifier/internal/metrics"
)

// Dispatcher claims an event in the ledger and sends its multicast. It never
// retries: a failed send is logged and left for a later cycle.
type Dispatcher struct {
	sender  Sender
	ledger  Ledger
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher returns a Dispatcher. A zero timeout uses the default.
func NewDispatcher(sender Sender, ledger Ledger, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{sender: sender, ledger: ledger, timeout: timeout, metrics: m, logger: logger}
}

// Dispatch sends one multicast for ev to tokens.
//
// The ledger claim happens immediately before the send; an event somebody
// already claimed is skipped. When the gateway call itself fails the claim
// is released so the event is not recorded as notified. Per-token failures
// inside a successful call keep the claim and are only counted.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event, tokens []string) (Outcome, error) {
	out := Outcome{EventID: ev.ID, Tokens: len(tokens)}
	if len(tokens) == 0 {
		out.Status = StatusNoTokens
		return out, ErrNoTokens
	}

	claimed, err := d.claim(ctx, ev)
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		return out, err
	}
	if !claimed {
		out.Status = StatusAlreadyNotified
		return out, nil
	}

	report, err := d.send(ctx, BuildMulticast(ev, tokens))
	if err != nil {
		if relErr := d.release(ctx, ev.ID); relErr != nil {
			d.logger.Warn("ledger release failed", "event_id", ev.ID, "error", relErr)
		}
		out.Status = StatusFailed
		out.Error = err.Error()
		out.Failed = len(tokens)
		return out, fmt.Errorf("dispatch event %d: %w", ev.ID, err)
	}

	out.Status = StatusSent
	if report != nil {
		out.Sent, out.Failed = report.SuccessCount, report.FailureCount
		for _, f := range report.Failures {
			d.logger.Debug("token rejected", "event_id", ev.ID, "error", f.Error)
		}
	}
	d.metrics.Tokens(out.Sent, out.Failed)

	if recErr := d.record(ctx, out); recErr != nil {
		d.logger.Warn("ledger record failed", "event_id", ev.ID, "error", recErr)
	}
	return out, nil
}

// send converts a panicking gateway into an error so the claim is still
// released.
func (d *Dispatcher) send(ctx context.Context, msg Multicast) (report *BatchReport, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			report, err = nil, fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return d.sender.SendMulticast(ctx, msg)
}

func (d *Dispatcher) claim(ctx context.Context, ev Event) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()
	claimed, err := d.ledger.Claim(ctx, ev)
	if err != nil {
		return false, fmt.Errorf("ledger claim: %w", err)
	}
	return claimed, nil
}

// release and record outlive a cancelled parent context so that shutdown
// in the middle of a send still leaves the ledger consistent.
func (d *Dispatcher) release(ctx context.Context, eventID int64) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	return d.ledger.Release(ctx, eventID)
}

func (d *Dispatcher) record(ctx context.Context, o Outcome) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	return d.ledger.Record(ctx, o)
}
