package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	SessionsStarted  prometheus.Counter
	ActiveSessions   prometheus.Gauge
	StepTransitions  *prometheus.CounterVec
	GuardBlocks      *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	HeldImages       prometheus.Gauge
	NotifyFailures   *prometheus.CounterVec
	EndpointLatency  *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_sessions_started_total",
			Help: "Total number of registration sessions started",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_sessions_active",
			Help: "Registration sessions currently in progress",
		}),
		StepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_step_transitions_total",
			Help: "Step changes by destination step and cause",
		}, []string{"to", "cause"}),
		GuardBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_guard_blocks_total",
			Help: "Advance attempts ignored because the step's input was incomplete",
		}, []string{"step"}),
		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_sessions_finished_total",
			Help: "Registration sessions that ended, by outcome",
		}, []string{"outcome"}),
		HeldImages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "onboarding_images_held",
			Help: "Uploaded document images currently held in memory",
		}),
		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_notify_failures_total",
			Help: "Registration events that could not be published",
		}, []string{"event_type"}),
		EndpointLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementSessionsStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// ObserveSessionFinished records a session leaving the active set.
func (m *Metrics) ObserveSessionFinished(outcome string) {
	m.SessionsFinished.WithLabelValues(outcome).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) IncrementTransition(to, cause string) {
	m.StepTransitions.WithLabelValues(to, cause).Inc()
}

func (m *Metrics) IncrementGuardBlock(step string) {
	m.GuardBlocks.WithLabelValues(step).Inc()
}

func (m *Metrics) SetHeldImages(count int) {
	m.HeldImages.Set(float64(count))
}

func (m *Metrics) IncrementNotifyFailure(eventType string) {
	m.NotifyFailures.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ObserveLatency(method, route, status string, seconds float64) {
	m.EndpointLatency.WithLabelValues(method, route, status).Observe(seconds)
}
