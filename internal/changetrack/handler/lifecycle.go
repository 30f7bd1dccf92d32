package handler

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"casetrail/internal/changetrack/event"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/sentinel"
)

// lifecycle is the state bookkeeping shared by all variants. Variants supply
// only the capture and diff logic.
type lifecycle struct {
	tracker    *Tracker
	kind       string
	objectType audit.BusinessObjectType

	entityID   string
	state      State
	err        error
	captureErr error
	event      *audit.AuditEvent
	// changed lists the diffed paths of map-shaped variants.
	changed []string
}

// newLifecycle falls back to a tracker without assembler, logger or metrics
// when t is nil, so a misbuilt handler fails its publish instead of panicking.
func newLifecycle(t *Tracker, kind string, objectType audit.BusinessObjectType) lifecycle {
	if t == nil {
		t = NewTracker(nil)
	}
	return lifecycle{tracker: t, kind: kind, objectType: objectType}
}

func (l *lifecycle) State() State { return l.state }

func (l *lifecycle) Err() error { return l.err }

func (l *lifecycle) Event() (audit.AuditEvent, bool) {
	if l.event == nil {
		return audit.AuditEvent{}, false
	}
	return *l.event, true
}

// capture runs one snapshot phase. A failing snapshot does not stop the
// protocol; it is remembered so publish can refuse to diff a partial state.
// Calls on a terminal handler are ignored.
func (l *lifecycle) capture(ctx context.Context, phase Phase, want, next State, fn func() error) {
	if l.state.Terminal() {
		return
	}
	if l.state != want {
		l.fail(ctx, phase, fmt.Errorf("%s called in state %s: %w", phase, l.state, sentinel.ErrInvalidState))
		return
	}
	if err := safely(fn); err != nil {
		if l.captureErr == nil {
			l.captureErr = err
		}
		l.report(ctx, phase, err)
	}
	l.state = next
}

// publish runs the diff-and-emit step. detect returns nil when nothing
// changed.
func (l *lifecycle) publish(ctx context.Context, detect func() (*event.Change, error)) {
	if l.state.Terminal() {
		return
	}
	if l.state != StatePostCaptured {
		l.fail(ctx, PhasePublish, fmt.Errorf("publish called in state %s: %w", l.state, sentinel.ErrInvalidState))
		return
	}
	if l.captureErr != nil {
		l.state = StateFailed
		l.err = fmt.Errorf("snapshot incomplete: %w", l.captureErr)
		l.tracker.logger.WarnContext(ctx, "audit event skipped, snapshot incomplete",
			"handler", l.kind,
			"business_object_type", l.objectType,
			"business_object_id", l.entityID,
			"error", l.captureErr,
		)
		return
	}

	var emitted audit.AuditEvent
	var changed bool
	err := safely(func() error {
		change, err := detect()
		if err != nil {
			return err
		}
		if change == nil {
			return nil
		}
		changed = true
		emitted, err = l.tracker.assembler.Publish(ctx, *change)
		return err
	})
	if err != nil {
		l.fail(ctx, PhasePublish, err)
		return
	}
	if !changed {
		l.state = StateSuppressed
		l.tracker.metrics.IncSuppressed(l.kind)
		return
	}

	l.state = StatePublished
	l.event = &emitted
	l.tracker.metrics.IncPublished(l.kind)
	l.tracker.logger.DebugContext(ctx, "audit event published",
		"handler", l.kind,
		"event_id", emitted.ID,
		"activity_type", emitted.ActivityType,
		"business_object_id", l.entityID,
		"changed_paths", l.changed,
	)
}

func (l *lifecycle) fail(ctx context.Context, phase Phase, err error) {
	l.state = StateFailed
	l.err = err
	l.report(ctx, phase, err)
}

func (l *lifecycle) report(ctx context.Context, phase Phase, err error) {
	l.tracker.metrics.IncFailure(l.kind, string(phase))
	l.tracker.logger.ErrorContext(ctx, "audit change tracking failed",
		"handler", l.kind,
		"phase", phase,
		"business_object_type", l.objectType,
		"business_object_id", l.entityID,
		"error", err,
	)
}

// safely runs fn and converts a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

var errNilEntity = errors.New("entity is nil")

// checkEntity rejects nil interfaces and typed nil pointers.
func checkEntity[E any](entity E) error {
	v := reflect.ValueOf(any(entity))
	if !v.IsValid() {
		return errNilEntity
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Slice:
		if v.IsNil() {
			return errNilEntity
		}
	}
	return nil
}
