// Package handler implements the three-phase change capture protocol.
//
// A caller creates one handler per entity per mutation, then calls
// CaptureBefore, applies the mutation, calls CaptureAfter and finally
// Publish. The handler diffs the two snapshots and emits an audit event only
// when something meaningful changed. Nothing a handler does can fail the
// caller: every error and panic is caught, logged and counted here.
package handler

import (
	"context"
	"io"
	"log/slog"

	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/metrics"
	audit "casetrail/pkg/platform/audit"
)

// Handler is the capability every change handler variant provides.
type Handler[E any] interface {
	CaptureBefore(ctx context.Context, entity E)
	CaptureAfter(ctx context.Context, entity E)
	Publish(ctx context.Context, originatorID string)
	State() State
	// Err reports why the handler failed, nil otherwise.
	Err() error
	// Event returns the emitted event once the handler is Published.
	Event() (audit.AuditEvent, bool)
}

// State is the handler lifecycle position.
type State int

const (
	StateCreated State = iota
	StatePreCaptured
	StatePostCaptured
	StatePublished
	StateSuppressed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePreCaptured:
		return "pre_captured"
	case StatePostCaptured:
		return "post_captured"
	case StatePublished:
		return "published"
	case StateSuppressed:
		return "suppressed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further phase can run.
func (s State) Terminal() bool {
	return s == StatePublished || s == StateSuppressed || s == StateFailed
}

// Phase names a protocol step in logs and metrics.
type Phase string

const (
	PhaseCaptureBefore Phase = "capture_before"
	PhaseCaptureAfter  Phase = "capture_after"
	PhasePublish       Phase = "publish"
)

// Tracker carries the collaborators every handler needs and builds handlers.
// It is safe to share; the handlers it returns are not.
type Tracker struct {
	assembler *event.Assembler
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used to report audit failures.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithMetrics sets the outcome counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// NewTracker creates a tracker publishing through assembler.
func NewTracker(assembler *event.Assembler, opts ...Option) *Tracker {
	t := &Tracker{assembler: assembler}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return t
}
