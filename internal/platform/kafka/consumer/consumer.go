// Package consumer runs a franz-go consumer group loop with manual commits.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message. A returned error is retried with backoff;
// a message still failing after the last attempt is logged and skipped.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
)

// Consumer polls a consumer group and commits after each handled batch.
type Consumer struct {
	client      *kgo.Client
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

// New joins group and subscribes to topics.
func New(brokers []string, group string, topics []string, logger *slog.Logger, opts ...kgo.Opt) (*Consumer, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{
		client:      client,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}, nil
}

// Run polls until ctx is cancelled and commits every processed batch.
// Delivery is at least once: a crash between handling and commit replays the
// batch.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var processed []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			if err := c.handle(ctx, handler, record); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.ErrorContext(ctx, "kafka message dropped after retries",
					"topic", record.Topic,
					"partition", record.Partition,
					"offset", record.Offset,
					"error", err,
				)
			}
			processed = append(processed, record)
		})

		if len(processed) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, processed...); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "kafka offset commit failed", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, record *kgo.Record) error {
	return c.deliver(ctx, handler, toMessage(record))
}

// deliver retries handler with exponential backoff and returns the last error
// once the attempts are used up.
func (c *Consumer) deliver(ctx context.Context, handler Handler, msg *Message) error {
	return retry.Do(
		func() error {
			return handler.Handle(ctx, msg)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxAttempts)),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "kafka message handling failed",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"attempt", n+1,
				"error", err,
			)
		}),
	)
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}

func toMessage(record *kgo.Record) *Message {
	msg := &Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Timestamp: record.Timestamp,
	}
	if len(record.Headers) > 0 {
		msg.Headers = make(map[string]string, len(record.Headers))
		for _, h := range record.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
