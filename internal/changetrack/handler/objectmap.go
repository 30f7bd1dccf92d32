package handler

import (
	"context"
	"fmt"
	"maps"

	"casetrail/internal/changetrack/diff"
	"casetrail/internal/changetrack/event"
	"casetrail/internal/changetrack/models"
	audit "casetrail/pkg/platform/audit"
)

// ObjectMapSpec describes an entity type tracked through a field map.
type ObjectMapSpec[E any] struct {
	Kind         string
	ObjectType   audit.BusinessObjectType
	ActivityType audit.ActivityType
	// Label names the entity in the summary, e.g. "Note".
	Label  string
	ID     func(E) string
	Mapper Mapper[E]
	// IncludeRawData attaches the complete after snapshot to the event.
	IncludeRawData bool
}

// ObjectMapHandler tracks an arbitrary object through its field map. The
// summary is the same whichever fields changed; the changed keys travel in
// the payload.
type ObjectMapHandler[E any] struct {
	lifecycle
	spec   ObjectMapSpec[E]
	before map[string]any
	after  map[string]any
	raw    map[string]any
}

// NewObjectMapHandler creates a handler for spec.
func NewObjectMapHandler[E any](t *Tracker, spec ObjectMapSpec[E]) *ObjectMapHandler[E] {
	return &ObjectMapHandler[E]{
		lifecycle: newLifecycle(t, spec.Kind, spec.ObjectType),
		spec:      spec,
		before:    map[string]any{},
		after:     map[string]any{},
	}
}

func (h *ObjectMapHandler[E]) CaptureBefore(ctx context.Context, entity E) {
	h.capture(ctx, PhaseCaptureBefore, StateCreated, StatePreCaptured, func() error {
		if err := checkEntity(entity); err != nil {
			return err
		}
		h.entityID = h.spec.ID(entity)
		fields, err := h.spec.Mapper.ToFieldMap(entity)
		if err != nil {
			return err
		}
		h.before = fields
		return nil
	})
}

func (h *ObjectMapHandler[E]) CaptureAfter(ctx context.Context, entity E) {
	h.capture(ctx, PhaseCaptureAfter, StatePreCaptured, StatePostCaptured, func() error {
		if err := checkEntity(entity); err != nil {
			return err
		}
		fields, err := h.spec.Mapper.ToFieldMap(entity)
		if err != nil {
			return err
		}
		h.after = fields
		if h.spec.IncludeRawData {
			h.raw = maps.Clone(fields)
		}
		return nil
	})
}

func (h *ObjectMapHandler[E]) Publish(ctx context.Context, originatorID string) {
	h.publish(ctx, func() (*event.Change, error) {
		diff.RemoveUnchanged(h.before, h.after)
		if !diff.Changed(h.before, h.after) {
			return nil, nil
		}
		h.changed = diff.Keys(h.before, h.after)
		change := &event.Change{
			Before:             h.before,
			After:              h.after,
			ActivityType:       h.spec.ActivityType,
			BusinessObjectID:   h.entityID,
			BusinessObjectType: h.spec.ObjectType,
			Summary:            fmt.Sprintf("%s %s changed", h.spec.Label, h.entityID),
			OriginatorID:       originatorID,
		}
		if h.raw != nil {
			change.RawData = h.raw
		}
		return change, nil
	})
}

// NoteChanges tracks investigator notes through their JSON field map.
func NoteChanges() ObjectMapSpec[*models.Note] {
	return ObjectMapSpec[*models.Note]{
		Kind:         "note",
		ObjectType:   audit.BusinessObjectNote,
		ActivityType: audit.ActivityNoteChanged,
		Label:        "Note",
		ID:           func(n *models.Note) string { return n.ID },
		Mapper:       JSONMapper[*models.Note]{},
	}
}

// Note returns a fresh handler for one note mutation.
func (t *Tracker) Note() *ObjectMapHandler[*models.Note] {
	return NewObjectMapHandler(t, NoteChanges())
}
