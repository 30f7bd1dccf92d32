// Package consumer materializes audit events consumed from Kafka.
package consumer

import (
	"context"
	"log/slog"
	"slices"

	"casetrail/internal/platform/kafka/consumer"
)

// TopicHandler handles the messages of one topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches each message to the handler registered for its topic.
// Messages on unknown topics go to the fallback, or are logged and
// acknowledged when there is none.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a router; fallback may be nil.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register routes topic to handler, replacing any previous registration.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics returns the registered topics in sorted order, ready to subscribe.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Handle implements consumer.Handler.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if handler, ok := r.handlers[msg.Topic]; ok {
		return handler.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "audit message on unrouted topic acknowledged",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
