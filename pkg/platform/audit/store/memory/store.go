package memory

import (
	"context"
	"slices"
	"sync"

	audit "casetrail/pkg/platform/audit"
)

type objectKey struct {
	objectType audit.BusinessObjectType
	objectID   string
}

// InMemoryStore keeps events in process. Used by tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.AuditEvent
	byObject map[objectKey][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byObject: make(map[objectKey][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.byObject = make(map[objectKey][]int)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := objectKey{objectType: event.BusinessObjectType, objectID: event.BusinessObjectID}
	s.byObject[key] = append(s.byObject[key], len(s.events))
	s.events = append(s.events, event)
	return nil
}

// Send lets the store act as a sink directly.
func (s *InMemoryStore) Send(ctx context.Context, event audit.AuditEvent) error {
	return s.Append(ctx, event)
}

// ListByBusinessObject returns events for one business object in append order.
func (s *InMemoryStore) ListByBusinessObject(_ context.Context, objectType audit.BusinessObjectType, objectID string) ([]audit.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.byObject[objectKey{objectType: objectType, objectID: objectID}]
	out := make([]audit.AuditEvent, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListAll returns every event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events), nil
}

// ListRecent returns the most recent N events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.AuditEvent, error) {
	s.mu.RLock()
	all := slices.Clone(s.events)
	s.mu.RUnlock()

	slices.SortStableFunc(all, func(a, b audit.AuditEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit >= 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
