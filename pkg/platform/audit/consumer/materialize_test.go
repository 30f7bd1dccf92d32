package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrail/internal/platform/kafka/consumer"
	audit "casetrail/pkg/platform/audit"
)

type recordingStore struct {
	events map[uuid.UUID]audit.AuditEvent
	err    error
}

func (s *recordingStore) AppendWithID(_ context.Context, eventID uuid.UUID, event audit.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	if s.events == nil {
		s.events = map[uuid.UUID]audit.AuditEvent{}
	}
	if _, dup := s.events[eventID]; !dup {
		s.events[eventID] = event
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func message(t *testing.T, topic string, event audit.AuditEvent) *consumer.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return &consumer.Message{Topic: topic, Key: []byte(event.ID.String()), Value: value}
}

func validEvent() audit.AuditEvent {
	return audit.AuditEvent{
		ID:                 uuid.New(),
		Timestamp:          time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		OriginatorID:       "analyst-1",
		UserID:             "alice",
		Summary:            "User [alice] was assigned transaction TX-1",
		BusinessObjectID:   "TX-1",
		BusinessObjectType: audit.BusinessObjectTransaction,
		ActivityType:       audit.ActivityTransactionAssigned,
		Data:               audit.Payload{NewState: "alice"},
	}
}

func TestMaterializeHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the decoded event under its key", func(t *testing.T) {
		store := &recordingStore{}
		h := NewMaterializeHandler(store, discardLogger())
		event := validEvent()

		require.NoError(t, h.Handle(ctx, message(t, "casetrail.audit.compliance", event)))
		got, ok := store.events[event.ID]
		require.True(t, ok)
		assert.Equal(t, event.Summary, got.Summary)
		assert.Equal(t, event.Data, got.Data)
	})

	t.Run("redelivery is idempotent", func(t *testing.T) {
		store := &recordingStore{}
		h := NewMaterializeHandler(store, discardLogger())
		msg := message(t, "casetrail.audit.compliance", validEvent())

		require.NoError(t, h.Handle(ctx, msg))
		require.NoError(t, h.Handle(ctx, msg))
		assert.Len(t, store.events, 1)
	})

	t.Run("malformed messages are acknowledged without storing", func(t *testing.T) {
		store := &recordingStore{}
		h := NewMaterializeHandler(store, discardLogger())

		assert.NoError(t, h.Handle(ctx, &consumer.Message{Key: []byte("not-a-uuid"), Value: []byte(`{}`)}))
		assert.NoError(t, h.Handle(ctx, &consumer.Message{Key: []byte(uuid.NewString()), Value: []byte(`{`)}))
		assert.NoError(t, h.Handle(ctx, &consumer.Message{Key: []byte(uuid.NewString()), Value: []byte(`{"summary":"x"}`)}))
		assert.Empty(t, store.events)
	})

	t.Run("store failure is returned for retry", func(t *testing.T) {
		h := NewMaterializeHandler(&recordingStore{err: errors.New("db down")}, discardLogger())
		assert.Error(t, h.Handle(ctx, message(t, "casetrail.audit.compliance", validEvent())))
	})
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	var routed []string
	handler := func(name string) TopicHandler {
		return consumer.HandlerFunc(func(context.Context, *consumer.Message) error {
			routed = append(routed, name)
			return nil
		})
	}

	r := NewRouter(discardLogger(), nil)
	r.Register("operations", handler("operations"))
	r.Register("compliance", handler("compliance"))
	assert.Equal(t, []string{"compliance", "operations"}, r.Topics())
	require.NoError(t, r.Handle(ctx, &consumer.Message{Topic: "compliance"}))
	require.NoError(t, r.Handle(ctx, &consumer.Message{Topic: "unknown"}))
	assert.Equal(t, []string{"compliance"}, routed)

	withFallback := NewRouter(discardLogger(), handler("fallback"))
	require.NoError(t, withFallback.Handle(ctx, &consumer.Message{Topic: "unknown"}))
	assert.Equal(t, []string{"compliance", "fallback"}, routed)
}
