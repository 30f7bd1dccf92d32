// Package ops guards best-effort audit delivery: a circuit breaker in front of
// any audit.Sink so a failing backend is not retried on every mutation.
package ops

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/sentinel"
)

// GuardedSink forwards events to the next sink unless the circuit is open.
type GuardedSink struct {
	next    audit.Sink
	breaker *CircuitBreaker
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures the GuardedSink.
type Option func(*GuardedSink)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *CircuitBreaker) Option {
	return func(g *GuardedSink) {
		g.breaker = b
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(g *GuardedSink) {
		g.metrics = m
	}
}

// WithLogger sets a logger for breaker transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(g *GuardedSink) {
		g.logger = logger
	}
}

// NewGuardedSink wraps next.
func NewGuardedSink(next audit.Sink, opts ...Option) *GuardedSink {
	g := &GuardedSink{
		next:   next,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = NewCircuitBreaker(0, 0)
	}
	return g
}

// Send forwards the event or fails fast with sentinel.ErrUnavailable while
// the circuit is open.
func (g *GuardedSink) Send(ctx context.Context, event audit.AuditEvent) error {
	if !g.breaker.Allow() {
		g.metrics.IncCircuitBreakerDropped()
		return fmt.Errorf("audit sink circuit open: %w", sentinel.ErrUnavailable)
	}

	if err := g.next.Send(ctx, event); err != nil {
		wasOpen := g.breaker.IsOpen()
		g.breaker.RecordFailure()
		g.metrics.IncSendFailures()
		if open := g.breaker.IsOpen(); open && !wasOpen {
			g.metrics.SetCircuitBreakerState(true)
			g.logger.WarnContext(ctx, "audit sink circuit opened", "error", err)
		}
		return err
	}

	g.breaker.RecordSuccess()
	g.metrics.SetCircuitBreakerState(false)
	g.metrics.IncSent()
	return nil
}
