package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions       *prometheus.CounterVec
	Degraded        prometheus.Gauge
	PrimaryFailures prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_decisions_total",
			Help: "Rate limit checks by scope and result",
		}, []string{"scope", "result"}),
		Degraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_ratelimit_degraded",
			Help: "1 while rate limiting runs on the in-memory fallback",
		}),
		PrimaryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_ratelimit_primary_failures_total",
			Help: "Errors returned by the shared rate limit store",
		}),
	}
}

func (m *Metrics) ObserveDecision(scope string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.Decisions.WithLabelValues(scope, result).Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

func (m *Metrics) IncrementPrimaryFailures() {
	m.PrimaryFailures.Inc()
}
