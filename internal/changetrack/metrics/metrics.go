package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts change-handler outcomes per handler kind.
type Metrics struct {
	Published  *prometheus.CounterVec
	Suppressed *prometheus.CounterVec
	Failures   *prometheus.CounterVec
}

// New registers the change-tracking metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrail_changes_published_total",
			Help: "Total number of audit events emitted by change handlers",
		}, []string{"handler"}),
		Suppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrail_changes_suppressed_total",
			Help: "Total number of mutations where no semantic change was detected",
		}, []string{"handler"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrail_changes_failures_total",
			Help: "Total number of change handler failures by phase",
		}, []string{"handler", "phase"}),
	}
}

func (m *Metrics) IncPublished(handler string) {
	if m != nil {
		m.Published.WithLabelValues(handler).Inc()
	}
}

func (m *Metrics) IncSuppressed(handler string) {
	if m != nil {
		m.Suppressed.WithLabelValues(handler).Inc()
	}
}

func (m *Metrics) IncFailure(handler, phase string) {
	if m != nil {
		m.Failures.WithLabelValues(handler, phase).Inc()
	}
}
