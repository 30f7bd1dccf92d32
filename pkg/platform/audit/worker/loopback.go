package worker

import (
	"context"
	"time"

	"casetrail/internal/platform/kafka/consumer"
	"casetrail/internal/platform/kafka/producer"
)

// Loopback hands relayed messages straight to a consumer handler. It lets a
// deployment without Kafka still materialize its outbox.
type Loopback struct {
	handler consumer.Handler
	now     func() time.Time
}

// NewLoopback creates a publisher delivering to handler in-process.
func NewLoopback(handler consumer.Handler) *Loopback {
	return &Loopback{handler: handler, now: time.Now}
}

// Publish delivers msgs in order and stops at the first handler error, so the
// batch stays unpublished and is retried on the next cycle.
func (l *Loopback) Publish(ctx context.Context, msgs ...producer.Message) error {
	for i, msg := range msgs {
		err := l.handler.Handle(ctx, &consumer.Message{
			Topic:     msg.Topic,
			Offset:    int64(i),
			Key:       msg.Key,
			Value:     msg.Value,
			Headers:   msg.Headers,
			Timestamp: l.now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
