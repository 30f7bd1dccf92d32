package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casetrail/internal/platform/kafka/producer"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/audit/store/postgres"
)

type fakeOutbox struct {
	mu        sync.Mutex
	entries   []postgres.OutboxEntry
	published map[uuid.UUID]bool
	fetchErr  error
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]postgres.OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []postgres.OutboxEntry
	for _, e := range f.entries {
		if !f.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = map[uuid.UUID]bool{}
	}
	for _, id := range ids {
		f.published[id] = true
	}
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []producer.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msgs ...producer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

var testTopics = Topics{
	audit.CategoryCompliance: "casetrail.audit.compliance",
	audit.CategoryOperations: "casetrail.audit.operations",
}

func entry(activity audit.ActivityType) postgres.OutboxEntry {
	return postgres.OutboxEntry{
		ID:        uuid.New(),
		EventType: string(activity),
		Payload:   []byte(`{}`),
		CreatedAt: time.Now(),
	}
}

func TestRelayRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by category and marks published", func(t *testing.T) {
		assigned := entry(audit.ActivityTransactionAssigned)
		note := entry(audit.ActivityNoteChanged)
		outbox := &fakeOutbox{entries: []postgres.OutboxEntry{assigned, note}}
		pub := &fakePublisher{}
		reg := prometheus.NewRegistry()
		relay := NewRelay(outbox, pub, testTopics, WithRegisterer(reg))

		n, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.Len(t, pub.msgs, 2)
		assert.Equal(t, "casetrail.audit.compliance", pub.msgs[0].Topic)
		assert.Equal(t, []byte(assigned.ID.String()), pub.msgs[0].Key)
		assert.Equal(t, "casetrail.audit.operations", pub.msgs[1].Topic)
		assert.True(t, outbox.published[assigned.ID])
		assert.True(t, outbox.published[note.ID])
		assert.Equal(t, 2.0, testutil.ToFloat64(relay.relayed))

		n, err = relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("publish failure leaves entries unpublished", func(t *testing.T) {
		e := entry(audit.ActivityNoteChanged)
		outbox := &fakeOutbox{entries: []postgres.OutboxEntry{e}}
		relay := NewRelay(outbox, &fakePublisher{err: errors.New("broker down")}, testTopics)

		_, err := relay.RunOnce(ctx)
		require.Error(t, err)
		assert.False(t, outbox.published[e.ID])
	})

	t.Run("batch size bounds one cycle", func(t *testing.T) {
		outbox := &fakeOutbox{}
		for range 5 {
			outbox.entries = append(outbox.entries, entry(audit.ActivityNoteChanged))
		}
		relay := NewRelay(outbox, &fakePublisher{}, testTopics, WithBatchSize(2))

		n, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("missing topic fails the cycle", func(t *testing.T) {
		outbox := &fakeOutbox{entries: []postgres.OutboxEntry{entry(audit.ActivityTransactionAssigned)}}
		relay := NewRelay(outbox, &fakePublisher{}, Topics{audit.CategoryOperations: "ops"})

		_, err := relay.RunOnce(ctx)
		assert.ErrorContains(t, err, "no topic configured")
	})
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{entries: []postgres.OutboxEntry{entry(audit.ActivityNoteChanged)}}
	pub := &fakePublisher{}
	relay := NewRelay(outbox, pub, testTopics, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.msgs) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
