// Package worker relays outbox entries to Kafka.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"casetrail/internal/platform/kafka/producer"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/audit/store/postgres"
)

// Outbox is the slice of the postgres store the relay drives.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher produces messages to Kafka.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Topics maps event categories to Kafka topics.
type Topics map[audit.EventCategory]string

// Relay moves outbox entries to Kafka. An entry is marked published only
// after the broker acknowledged it, so a crash in between re-sends it; the
// consumer's idempotent insert absorbs the duplicate.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	topics    Topics
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	relayed  prometheus.Counter
	failures prometheus.Counter
}

// Option configures the Relay.
type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithRegisterer registers the relay counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Relay) {
		factory := promauto.With(reg)
		r.relayed = factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrail_outbox_relayed_total",
			Help: "Total number of outbox entries published to Kafka",
		})
		r.failures = factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrail_outbox_relay_failures_total",
			Help: "Total number of failed relay cycles",
		})
	}
}

// NewRelay creates a relay.
func NewRelay(outbox Outbox, publisher Publisher, topics Topics, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		topics:    topics,
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Run relays until ctx is cancelled. A full batch is followed immediately by
// another cycle; otherwise the relay sleeps for the interval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			if r.failures != nil {
				r.failures.Inc()
			}
			r.logger.ErrorContext(ctx, "outbox relay cycle failed", "error", err)
		}
		if n == r.batchSize && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce relays one batch and returns how many entries were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	msgs := make([]producer.Message, 0, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		category := audit.ActivityType(entry.EventType).Category()
		topic, ok := r.topics[category]
		if !ok {
			return 0, fmt.Errorf("no topic configured for category %q", category)
		}
		msgs = append(msgs, producer.Message{
			Topic: topic,
			Key:   []byte(entry.ID.String()),
			Value: entry.Payload,
			Headers: map[string]string{
				"event_type": entry.EventType,
			},
		})
		ids = append(ids, entry.ID)
	}

	if err := r.publisher.Publish(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, err
	}
	if r.relayed != nil {
		r.relayed.Add(float64(len(ids)))
	}
	r.logger.DebugContext(ctx, "outbox entries relayed", "count", len(ids))
	return len(ids), nil
}
