package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"casetrail/internal/platform/kafka/consumer"
	audit "casetrail/pkg/platform/audit"
)

// EventStore writes materialized events. Inserts must be idempotent on the
// event id because the relay delivers at least once.
type EventStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.AuditEvent) error
}

// MaterializeHandler writes audit events from Kafka into the queryable
// audit_events table.
type MaterializeHandler struct {
	store  EventStore
	logger *slog.Logger
}

// NewMaterializeHandler creates a materializing handler.
func NewMaterializeHandler(store EventStore, logger *slog.Logger) *MaterializeHandler {
	return &MaterializeHandler{store: store, logger: logger}
}

// Handle stores one event. Malformed messages can never succeed, so they are
// logged and acknowledged; store errors are returned for retry.
func (h *MaterializeHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.WarnContext(ctx, "audit message with invalid key skipped",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	var event audit.AuditEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "malformed audit message skipped",
			"topic", msg.Topic,
			"event_id", eventID,
			"error", err,
		)
		return nil
	}
	if err := event.Validate(); err != nil {
		h.logger.WarnContext(ctx, "invalid audit event skipped",
			"topic", msg.Topic,
			"event_id", eventID,
			"error", err,
		)
		return nil
	}
	event.ID = eventID

	return h.store.AppendWithID(ctx, eventID, event)
}
