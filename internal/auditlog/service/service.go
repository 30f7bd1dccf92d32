// Package service serves the audit trail to investigators.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	audit "casetrail/pkg/platform/audit"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrInvalidQuery marks a query the caller has to fix.
var ErrInvalidQuery = errors.New("invalid audit query")

// Query selects events. When both business object fields are empty the most
// recent events are returned.
type Query struct {
	BusinessObjectType audit.BusinessObjectType
	BusinessObjectID   string
	Limit              int
}

// Service lists audit events from a store.
type Service struct {
	store audit.Store
}

// New creates the service.
func New(store audit.Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &Service{store: store}, nil
}

// List runs q and returns at most q.Limit events, newest first.
func (s *Service) List(ctx context.Context, q Query) ([]audit.AuditEvent, error) {
	limit, err := normalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}
	objectType := audit.BusinessObjectType(strings.ToUpper(strings.TrimSpace(string(q.BusinessObjectType))))
	objectID := strings.TrimSpace(q.BusinessObjectID)

	switch {
	case objectType == "" && objectID == "":
		events, err := s.store.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list recent audit events: %w", err)
		}
		return events, nil
	case objectType == "" || objectID == "":
		return nil, fmt.Errorf("%w: business_object_type and business_object_id must be given together", ErrInvalidQuery)
	}

	events, err := s.store.ListByBusinessObject(ctx, objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("list audit events for %s %s: %w", objectType, objectID, err)
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	case limit == 0:
		return DefaultLimit, nil
	case limit > MaxLimit:
		return MaxLimit, nil
	default:
		return limit, nil
	}
}
