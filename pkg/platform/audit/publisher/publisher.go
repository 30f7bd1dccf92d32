// Package publisher turns an audit.Store into an audit.Sink, either writing
// synchronously or through a bounded in-process buffer drained by a single
// goroutine.
package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/sentinel"
	"casetrail/pkg/requestcontext"
)

// Publisher appends audit events to a store. It is append-only and safe for
// concurrent use.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	bufferSize int
	buffer     chan audit.AuditEvent
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n
// events. Send returns sentinel.ErrBufferFull instead of blocking when full.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

// WithLogger sets a logger for async persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a publisher over store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.AuditEvent, p.bufferSize)
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

// Send persists the event, or queues it in async mode. A zero timestamp is
// replaced with the request-scoped time.
func (p *Publisher) Send(ctx context.Context, event audit.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	if p.buffer == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher closed: %w", sentinel.ErrInvalidState)
	}

	select {
	case p.buffer <- event:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return sentinel.ErrBufferFull
}

// Close stops accepting events and, in async mode, waits until everything
// already buffered has been written.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
	return nil
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.buffer {
		// The request that produced the event may already be finished.
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist buffered audit event",
				"event_id", event.ID,
				"activity_type", event.ActivityType,
				"business_object_id", event.BusinessObjectID,
				"error", err,
			)
		}
	}
}
