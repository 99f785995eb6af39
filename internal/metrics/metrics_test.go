package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Dispatch("sent")
	m.Dispatch("sent")
	m.Dispatch("failed")
	m.Tokens(5, 2)
	m.EventsScanned(3)
	m.ObserveCycle("ok", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.tokens.WithLabelValues("sent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokens.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Dispatch("sent")
		m.Tokens(1, 1)
		m.EventsScanned(1)
		m.ObserveAudience(1)
		m.ObserveCycle("ok", time.Second)
	})
}
