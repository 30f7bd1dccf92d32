package audit

import "context"

// Sink receives assembled audit events. Delivery, retry and ordering are the
// sink's own concern; callers treat Send as a synchronous, fallible boundary.
type Sink interface {
	Send(ctx context.Context, event AuditEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event AuditEvent) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, event AuditEvent) error {
	return f(ctx, event)
}

// Store persists audit events and serves them back for investigation.
type Store interface {
	Append(ctx context.Context, event AuditEvent) error
	ListByBusinessObject(ctx context.Context, objectType BusinessObjectType, objectID string) ([]AuditEvent, error)
	ListRecent(ctx context.Context, limit int) ([]AuditEvent, error)
}
