package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/handler/mocks"
	"casetrail/internal/changetrack/metrics"
	"casetrail/internal/changetrack/models"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/sentinel"
)

// LifecycleSuite covers the protocol guarantees shared by every handler
// variant: ordering, failure isolation and terminal states.
type LifecycleSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	sink    *mocks.MockSink
	logs    *bytes.Buffer
	metrics *metrics.Metrics
	tracker *Tracker
	ctx     context.Context
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sink = mocks.NewMockSink(s.ctrl)
	s.logs = &bytes.Buffer{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewJSONHandler(s.logs, nil))
	s.tracker = NewTracker(event.NewAssembler(s.sink), WithLogger(logger), WithMetrics(s.metrics))
	s.ctx = context.Background()
}

func (s *LifecycleSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *LifecycleSuite) TestOrdering() {
	s.Run("publish before any capture fails", func() {
		h := s.tracker.TransactionAssignment()
		h.Publish(s.ctx, "originator-1")

		s.Equal(StateFailed, h.State())
		s.ErrorIs(h.Err(), sentinel.ErrInvalidState)
	})

	s.Run("capture after without capture before fails", func() {
		h := s.tracker.TransactionAssignment()
		h.CaptureAfter(s.ctx, &models.Transaction{ID: "TX-1"})

		s.Equal(StateFailed, h.State())
		s.ErrorIs(h.Err(), sentinel.ErrInvalidState)
	})

	s.Run("repeated capture before fails", func() {
		h := s.tracker.TransactionAssignment()
		tx := &models.Transaction{ID: "TX-1"}
		h.CaptureBefore(s.ctx, tx)
		h.CaptureBefore(s.ctx, tx)

		s.Equal(StateFailed, h.State())
	})

	s.Run("calls on a terminal handler are ignored", func() {
		s.sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil).Times(1)

		h := s.tracker.TransactionAssignment()
		tx := &models.Transaction{ID: "TX-1"}
		h.CaptureBefore(s.ctx, tx)
		tx.AssignedTo = strPtr("alice")
		h.CaptureAfter(s.ctx, tx)
		h.Publish(s.ctx, "originator-1")
		h.Publish(s.ctx, "originator-1")
		h.CaptureBefore(s.ctx, tx)

		s.Equal(StatePublished, h.State())
		s.NoError(h.Err())
	})
}

func (s *LifecycleSuite) TestFailureIsolation() {
	s.Run("sink error leaves the handler failed and is logged", func() {
		s.sink.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		h := s.tracker.TransactionAssignment()
		tx := &models.Transaction{ID: "TX-5"}
		h.CaptureBefore(s.ctx, tx)
		tx.AssignedTo = strPtr("alice")
		h.CaptureAfter(s.ctx, tx)
		s.NotPanics(func() { h.Publish(s.ctx, "originator-1") })

		s.Equal(StateFailed, h.State())
		s.ErrorContains(h.Err(), "broker down")
		_, ok := h.Event()
		s.False(ok)
		s.Contains(s.logs.String(), "TX-5")
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Failures.WithLabelValues("transaction_assignment", "publish")))
	})

	s.Run("sink panic is recovered", func() {
		s.sink.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, audit.AuditEvent) error { panic("sink exploded") },
		)

		h := s.tracker.TransactionAssignment()
		tx := &models.Transaction{ID: "TX-6"}
		h.CaptureBefore(s.ctx, tx)
		tx.AssignedTo = strPtr("alice")
		h.CaptureAfter(s.ctx, tx)
		s.NotPanics(func() { h.Publish(s.ctx, "originator-1") })

		s.Equal(StateFailed, h.State())
		s.ErrorContains(h.Err(), "sink exploded")
	})

	s.Run("nil entity never reaches the sink", func() {
		h := s.tracker.TransactionAssignment()
		s.NotPanics(func() {
			h.CaptureBefore(s.ctx, nil)
			h.CaptureAfter(s.ctx, &models.Transaction{ID: "TX-7", AssignedTo: strPtr("alice")})
			h.Publish(s.ctx, "originator-1")
		})

		s.Equal(StateFailed, h.State())
		s.ErrorIs(h.Err(), errNilEntity)
	})

	s.Run("panicking accessor is recovered during capture", func() {
		spec := TransactionAssignment()
		spec.Value = func(*models.Transaction) *string { panic("accessor failed") }
		h := NewScalarHandler(s.tracker, spec)

		s.NotPanics(func() {
			h.CaptureBefore(s.ctx, &models.Transaction{ID: "TX-8"})
			h.CaptureAfter(s.ctx, &models.Transaction{ID: "TX-8"})
			h.Publish(s.ctx, "originator-1")
		})
		s.Equal(StateFailed, h.State())
		s.ErrorContains(h.Err(), "accessor failed")
	})
}

func (s *LifecycleSuite) TestEventContents() {
	s.sink.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.AuditEvent) error {
			s.Equal(audit.ActivityTransactionAssigned, e.ActivityType)
			s.Equal(audit.CategoryCompliance, e.Category())
			s.Equal("originator-1", e.OriginatorID)
			s.NotEmpty(e.ID)
			return nil
		},
	)

	h := s.tracker.TransactionAssignment()
	tx := &models.Transaction{ID: "TX-9"}
	h.CaptureBefore(s.ctx, tx)
	tx.AssignedTo = strPtr("alice")
	h.CaptureAfter(s.ctx, tx)
	h.Publish(s.ctx, "originator-1")

	s.Equal(StatePublished, h.State())
}

func (s *LifecycleSuite) TestNilTracker() {
	h := NewScalarHandler[*models.Transaction](nil, TransactionAssignment())
	tx := &models.Transaction{ID: "TX-10"}

	s.NotPanics(func() {
		h.CaptureBefore(s.ctx, tx)
		tx.AssignedTo = strPtr("alice")
		h.CaptureAfter(s.ctx, tx)
		h.Publish(s.ctx, "originator-1")
	})
	s.Equal(StateFailed, h.State())
	s.Error(h.Err())

	s.NotPanics(func() {
		NewScalarHandler[*models.Transaction](nil, TransactionAssignment()).Publish(s.ctx, "originator-1")
	})
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateCreated:      "created",
		StatePreCaptured:  "pre_captured",
		StatePostCaptured: "post_captured",
		StatePublished:    "published",
		StateSuppressed:   "suppressed",
		StateFailed:       "failed",
		State(99):         "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
