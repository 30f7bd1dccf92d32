package ops

import (
	"context"
	"errors"
	"testing"
	"time"

	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/sentinel"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestCircuitBreaker(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = clock.Now

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.True(t, cb.Allow(), "below threshold stays closed")
	cb.RecordFailure()
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	clock.t = clock.t.Add(2 * time.Minute)
	assert.True(t, cb.Allow(), "trial call allowed after cooldown")

	cb.RecordFailure()
	assert.True(t, cb.IsOpen(), "failed trial call reopens immediately")

	cb.Reset()
	assert.False(t, cb.IsOpen())
}

func TestGuardedSink(t *testing.T) {
	failing := true
	calls := 0
	next := audit.SinkFunc(func(context.Context, audit.AuditEvent) error {
		calls++
		if failing {
			return errors.New("kafka down")
		}
		return nil
	})

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	clock := &fakeClock{t: time.Now()}
	breaker := NewCircuitBreaker(2, time.Minute)
	breaker.now = clock.Now
	sink := NewGuardedSink(next, WithBreaker(breaker), WithMetrics(metrics))
	ctx := context.Background()

	require.Error(t, sink.Send(ctx, audit.AuditEvent{}))
	require.Error(t, sink.Send(ctx, audit.AuditEvent{}))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitBreakerState))

	err := sink.Send(ctx, audit.AuditEvent{})
	assert.True(t, errors.Is(err, sentinel.ErrUnavailable))
	assert.Equal(t, 2, calls, "open circuit must not reach the next sink")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CircuitBreakerDropped))

	failing = false
	clock.t = clock.t.Add(2 * time.Minute)
	require.NoError(t, sink.Send(ctx, audit.AuditEvent{}))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.CircuitBreakerState))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Sent))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.SendFailures))
}

func TestGuardedSink_NilMetrics(t *testing.T) {
	sink := NewGuardedSink(audit.SinkFunc(func(context.Context, audit.AuditEvent) error { return nil }))
	assert.NoError(t, sink.Send(context.Background(), audit.AuditEvent{}))
}
