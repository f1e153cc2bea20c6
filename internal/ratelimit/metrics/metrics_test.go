package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDecision("session_start", true)
	m.ObserveDecision("session_start", true)
	m.ObserveDecision("session_start", false)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Decisions.WithLabelValues("session_start", "allowed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Decisions.WithLabelValues("session_start", "denied")), 0)

	m.SetDegraded(true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Degraded), 0)
	m.SetDegraded(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Degraded), 0)

	m.IncrementPrimaryFailures()
	assert.InDelta(t, 1, testutil.ToFloat64(m.PrimaryFailures), 0)
}
