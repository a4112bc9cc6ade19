package wizard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Step outcomes
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeRedirect = "redirect"
	OutcomeError    = "error"
)

// MetricsCollector defines the interface for collecting wizard metrics
type MetricsCollector interface {
	RecordStep(step, outcome string, duration time.Duration)
	RecordNotificationFailure(milestone string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordStep(string, string, time.Duration) {}
func (n *NoopMetricsCollector) RecordNotificationFailure(string)         {}

type PrometheusMetrics struct {
	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	notifyFailure *prometheus.CounterVec
}

// NewPrometheusMetrics registers the wizard collectors with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loan",
			Subsystem: "wizard",
			Name:      "steps_total",
			Help:      "Wizard step submissions by outcome",
		}, []string{"step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loan",
			Subsystem: "wizard",
			Name:      "step_duration_seconds",
			Help:      "Wizard step duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		notifyFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loan",
			Subsystem: "wizard",
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be delivered",
		}, []string{"milestone"}),
	}
	reg.MustRegister(m.steps, m.stepDuration, m.notifyFailure)
	return m
}

func (m *PrometheusMetrics) RecordStep(step, outcome string, duration time.Duration) {
	m.steps.WithLabelValues(step, outcome).Inc()
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordNotificationFailure(milestone string) {
	m.notifyFailure.WithLabelValues(milestone).Inc()
}
