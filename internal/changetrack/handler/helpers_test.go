package handler

//go:generate mockgen -destination=mocks/sink_mock.go -package=mocks casetrail/pkg/platform/audit Sink

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/metrics"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/audit/store/memory"
)

type testEnv struct {
	tracker *Tracker
	store   *memory.InMemoryStore
	logs    *bytes.Buffer
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewInMemoryStore()
	return newTestEnvWithSink(t, store, store)
}

func newTestEnvWithSink(t *testing.T, sink audit.Sink, store *memory.InMemoryStore) *testEnv {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := metrics.New(prometheus.NewRegistry())
	return &testEnv{
		tracker: NewTracker(event.NewAssembler(sink), WithLogger(logger), WithMetrics(m)),
		store:   store,
		logs:    logs,
		metrics: m,
	}
}

func strPtr(s string) *string { return &s }

func (e *testEnv) events(t *testing.T) []audit.AuditEvent {
	t.Helper()
	events, err := e.store.ListAll(context.Background())
	require.NoError(t, err)
	return events
}
