package handler

import (
	"context"
	"fmt"

	"casetrail/internal/changetrack/diff"
	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/models"
	"casetrail/internal/changetrack/tree"
	audit "casetrail/pkg/platform/audit"
)

// DynamicDataHandler tracks the schema-described dynamic data of a case.
// Snapshots are flattened trees, so computed properties never count as a
// change.
type DynamicDataHandler struct {
	lifecycle
	before tree.FlatState
	after  tree.FlatState
}

// NewDynamicDataHandler creates a handler for one case mutation.
func NewDynamicDataHandler(t *Tracker) *DynamicDataHandler {
	return &DynamicDataHandler{
		lifecycle: newLifecycle(t, "case_dynamic_data", audit.BusinessObjectCase),
		before:    tree.FlatState{},
		after:     tree.FlatState{},
	}
}

// CaseDynamicData returns a fresh handler for one case mutation.
func (t *Tracker) CaseDynamicData() *DynamicDataHandler {
	return NewDynamicDataHandler(t)
}

func (h *DynamicDataHandler) CaptureBefore(ctx context.Context, c *models.Case) {
	h.capture(ctx, PhaseCaptureBefore, StateCreated, StatePreCaptured, func() error {
		if err := checkEntity(c); err != nil {
			return err
		}
		h.entityID = c.ID
		h.before = tree.Flatten(c.DynamicData)
		return nil
	})
}

func (h *DynamicDataHandler) CaptureAfter(ctx context.Context, c *models.Case) {
	h.capture(ctx, PhaseCaptureAfter, StatePreCaptured, StatePostCaptured, func() error {
		if err := checkEntity(c); err != nil {
			return err
		}
		h.after = tree.Flatten(c.DynamicData)
		return nil
	})
}

func (h *DynamicDataHandler) Publish(ctx context.Context, originatorID string) {
	h.publish(ctx, func() (*event.Change, error) {
		diff.RemoveUnchanged(h.before, h.after)
		if !diff.Changed(h.before, h.after) {
			return nil, nil
		}
		h.changed = diff.Keys(h.before, h.after)
		return &event.Change{
			Before:             h.before,
			After:              h.after,
			ActivityType:       audit.ActivityCaseDynamicDataChanged,
			BusinessObjectID:   h.entityID,
			BusinessObjectType: audit.BusinessObjectCase,
			Summary:            fmt.Sprintf("Case %s changed its dynamic data", h.entityID),
			OriginatorID:       originatorID,
		}, nil
	})
}
