package handler

import (
	"context"
	"fmt"

	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/models"
	audit "casetrail/pkg/platform/audit"
)

// ScalarSpec describes one nullable scalar field of an entity type and how
// each kind of change to it is reported.
type ScalarSpec[E any] struct {
	Kind       string
	ObjectType audit.BusinessObjectType
	ID         func(E) string
	Value      func(E) *string

	// Set is used when the value goes from null to non-null.
	Set ScalarMessage
	// Cleared is used when the value goes from non-null to null.
	Cleared ScalarMessage
	// Changed is used when both values are non-null and differ.
	Changed ScalarMessage
}

// ScalarMessage produces the activity, summary and affected user for one
// branch. before and after are empty strings when null.
type ScalarMessage struct {
	ActivityType audit.ActivityType
	Summary      func(id, before, after string) string
	UserID       func(before, after string) string
}

// ScalarHandler tracks a single nullable scalar field.
type ScalarHandler[E any] struct {
	lifecycle
	spec   ScalarSpec[E]
	before *string
	after  *string
}

// NewScalarHandler creates a handler for spec.
func NewScalarHandler[E any](t *Tracker, spec ScalarSpec[E]) *ScalarHandler[E] {
	return &ScalarHandler[E]{
		lifecycle: newLifecycle(t, spec.Kind, spec.ObjectType),
		spec:      spec,
	}
}

func (h *ScalarHandler[E]) CaptureBefore(ctx context.Context, entity E) {
	h.capture(ctx, PhaseCaptureBefore, StateCreated, StatePreCaptured, func() error {
		if err := checkEntity(entity); err != nil {
			return err
		}
		h.entityID = h.spec.ID(entity)
		h.before = cloneString(h.spec.Value(entity))
		return nil
	})
}

func (h *ScalarHandler[E]) CaptureAfter(ctx context.Context, entity E) {
	h.capture(ctx, PhaseCaptureAfter, StatePreCaptured, StatePostCaptured, func() error {
		if err := checkEntity(entity); err != nil {
			return err
		}
		if id := h.spec.ID(entity); h.entityID != "" && id != h.entityID {
			return fmt.Errorf("captured %s %s before but %s after", h.spec.ObjectType, h.entityID, id)
		}
		h.after = cloneString(h.spec.Value(entity))
		return nil
	})
}

func (h *ScalarHandler[E]) Publish(ctx context.Context, originatorID string) {
	h.publish(ctx, func() (*event.Change, error) {
		var msg ScalarMessage
		switch {
		case h.before == nil && h.after == nil:
			return nil, nil
		case h.before == nil:
			msg = h.spec.Set
		case h.after == nil:
			msg = h.spec.Cleared
		case *h.before == *h.after:
			return nil, nil
		default:
			msg = h.spec.Changed
		}

		before, after := deref(h.before), deref(h.after)
		change := &event.Change{
			Before:             before,
			After:              after,
			ActivityType:       msg.ActivityType,
			BusinessObjectID:   h.entityID,
			BusinessObjectType: h.spec.ObjectType,
			Summary:            msg.Summary(h.entityID, before, after),
			OriginatorID:       originatorID,
		}
		if msg.UserID != nil {
			change.UserID = msg.UserID(before, after)
		}
		return change, nil
	})
}

// TransactionAssignment tracks who a transaction is assigned to.
func TransactionAssignment() ScalarSpec[*models.Transaction] {
	return ScalarSpec[*models.Transaction]{
		Kind:       "transaction_assignment",
		ObjectType: audit.BusinessObjectTransaction,
		ID:         func(tx *models.Transaction) string { return tx.ID },
		Value:      func(tx *models.Transaction) *string { return tx.AssignedTo },
		Set: ScalarMessage{
			ActivityType: audit.ActivityTransactionAssigned,
			Summary: func(id, _, after string) string {
				return fmt.Sprintf("User [%s] was assigned transaction %s", after, id)
			},
			UserID: func(_, after string) string { return after },
		},
		Cleared: ScalarMessage{
			ActivityType: audit.ActivityTransactionUnassigned,
			Summary: func(id, before, _ string) string {
				return fmt.Sprintf("User [%s] was unassigned from transaction %s", before, id)
			},
			UserID: func(before, _ string) string { return before },
		},
		Changed: ScalarMessage{
			ActivityType: audit.ActivityTransactionReassigned,
			Summary: func(id, before, after string) string {
				return fmt.Sprintf("Transaction %s was reassigned from [%s] to [%s]", id, before, after)
			},
			UserID: func(_, after string) string { return after },
		},
	}
}

// TransactionAssignment returns a fresh handler for one transaction mutation.
func (t *Tracker) TransactionAssignment() *ScalarHandler[*models.Transaction] {
	return NewScalarHandler(t, TransactionAssignment())
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
