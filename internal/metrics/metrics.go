// Package metrics exposes Prometheus collectors for the notification cycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the scheduler and dispatcher update.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	lastCycle     prometheus.Gauge
	eventsScanned prometheus.Counter
	audienceSize  prometheus.Histogram
	dispatches    *prometheus.CounterVec
	tokens        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "event_notifier",
			Name:      "cycles_total",
			Help:      "Scan cycles by outcome",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "event_notifier",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one scan cycle",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "event_notifier",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix timestamp of the last completed cycle",
		}),
		eventsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "event_notifier",
			Name:      "events_scanned_total",
			Help:      "Events found inside the lookahead window",
		}),
		audienceSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "event_notifier",
			Name:      "audience_size",
			Help:      "Deduplicated audience size per event",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "event_notifier",
			Name:      "dispatches_total",
			Help:      "Per-event dispatch outcomes",
		}, []string{"status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "event_notifier",
			Name:      "tokens_total",
			Help:      "Push tokens reported by the gateway",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.cycles, m.cycleDuration, m.lastCycle,
		m.eventsScanned, m.audienceSize, m.dispatches, m.tokens,
	)
	return m
}

// ObserveCycle records the end of a cycle.
func (m *Metrics) ObserveCycle(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(status).Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.lastCycle.SetToCurrentTime()
}

// EventsScanned adds n to the scanned-events counter.
func (m *Metrics) EventsScanned(n int) {
	if m == nil {
		return
	}
	m.eventsScanned.Add(float64(n))
}

// ObserveAudience records one resolved audience size.
func (m *Metrics) ObserveAudience(n int) {
	if m == nil {
		return
	}
	m.audienceSize.Observe(float64(n))
}

// Dispatch counts one per-event outcome.
func (m *Metrics) Dispatch(status string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(status).Inc()
}

// Tokens counts gateway-reported token results.
func (m *Metrics) Tokens(sent, failed int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues("sent").Add(float64(sent))
	m.tokens.WithLabelValues("failed").Add(float64(failed))
}
