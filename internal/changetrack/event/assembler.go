// Package event turns a detected change into an audit.AuditEvent and hands it
// to the sink. Serialization and the sink call both happen here, which makes
// this the boundary where publish failures originate.
package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/requestcontext"
)

// Change is everything known about one detected change.
type Change struct {
	Before             any
	After              any
	RawData            any
	ActivityType       audit.ActivityType
	BusinessObjectID   string
	BusinessObjectType audit.BusinessObjectType
	Summary            string
	OriginatorID       string
	UserID             string
}

// Assembler builds audit events and forwards them to a sink.
type Assembler struct {
	sink   audit.Sink
	tracer trace.Tracer
	newID  func() uuid.UUID
}

// Option configures the Assembler.
type Option func(*Assembler)

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Assembler) {
		a.tracer = tracer
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(a *Assembler) {
		a.newID = fn
	}
}

// NewAssembler creates an assembler forwarding to sink.
func NewAssembler(sink audit.Sink, opts ...Option) *Assembler {
	a := &Assembler{
		sink:   sink,
		tracer: otel.Tracer("casetrail/changetrack"),
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the immutable event for c. Map-shaped states are encoded
// as JSON objects with sorted keys; scalar states are used as-is.
func (a *Assembler) Assemble(ctx context.Context, c Change) (audit.AuditEvent, error) {
	ctx, span := a.tracer.Start(ctx, "audit.assemble", trace.WithAttributes(
		attribute.String("audit.activity_type", string(c.ActivityType)),
		attribute.String("audit.business_object_type", string(c.BusinessObjectType)),
		attribute.String("audit.business_object_id", c.BusinessObjectID),
	))
	defer span.End()

	event, err := a.assemble(ctx, c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit event not assembled")
		return audit.AuditEvent{}, err
	}
	return event, nil
}

func (a *Assembler) assemble(ctx context.Context, c Change) (audit.AuditEvent, error) {
	oldState, err := encodeState(c.Before)
	if err != nil {
		return audit.AuditEvent{}, fmt.Errorf("encode old state: %w", err)
	}
	newState, err := encodeState(c.After)
	if err != nil {
		return audit.AuditEvent{}, fmt.Errorf("encode new state: %w", err)
	}
	rawData, err := encodeState(c.RawData)
	if err != nil {
		return audit.AuditEvent{}, fmt.Errorf("encode raw data: %w", err)
	}

	event := audit.AuditEvent{
		ID:                 a.newID(),
		Timestamp:          requestcontext.Now(ctx),
		OriginatorID:       c.OriginatorID,
		UserID:             c.UserID,
		Summary:            c.Summary,
		BusinessObjectID:   c.BusinessObjectID,
		BusinessObjectType: c.BusinessObjectType,
		ActivityType:       c.ActivityType,
		RequestID:          requestcontext.RequestID(ctx),
		Data: audit.Payload{
			OldState: oldState,
			NewState: newState,
			RawData:  rawData,
		},
	}
	if err := event.Validate(); err != nil {
		return audit.AuditEvent{}, err
	}
	return event, nil
}

// Send forwards an assembled event to the sink.
func (a *Assembler) Send(ctx context.Context, event audit.AuditEvent) error {
	ctx, span := a.tracer.Start(ctx, "audit.send", trace.WithAttributes(
		attribute.String("audit.activity_type", string(event.ActivityType)),
		attribute.String("audit.business_object_type", string(event.BusinessObjectType)),
		attribute.String("audit.business_object_id", event.BusinessObjectID),
	))
	defer span.End()

	if err := a.sink.Send(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit sink rejected event")
		return fmt.Errorf("send audit event: %w", err)
	}
	return nil
}

// Publish assembles and sends in one step.
func (a *Assembler) Publish(ctx context.Context, c Change) (audit.AuditEvent, error) {
	event, err := a.Assemble(ctx, c)
	if err != nil {
		return audit.AuditEvent{}, err
	}
	if err := a.Send(ctx, event); err != nil {
		return audit.AuditEvent{}, err
	}
	return event, nil
}

func encodeState(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case *string:
		if s == nil {
			return "", nil
		}
		return *s, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
