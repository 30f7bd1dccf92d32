package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the guarded audit sink.
type Metrics struct {
	Sent                  prometheus.Counter
	SendFailures          prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers the guarded-sink metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sent: factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrail_audit_sink_sent_total",
			Help: "Total number of audit events accepted by the sink",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrail_audit_sink_failures_total",
			Help: "Total number of audit events the sink rejected",
		}),
		CircuitBreakerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrail_audit_sink_circuit_breaker_dropped_total",
			Help: "Total number of audit events dropped while the circuit breaker was open",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casetrail_audit_sink_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncSent() {
	if m != nil {
		m.Sent.Inc()
	}
}

func (m *Metrics) IncSendFailures() {
	if m != nil {
		m.SendFailures.Inc()
	}
}

func (m *Metrics) IncCircuitBreakerDropped() {
	if m != nil {
		m.CircuitBreakerDropped.Inc()
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
