package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "casetrail/pkg/platform/audit"
	txcontext "casetrail/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Append writes to the outbox table; the relay publishes outbox rows to Kafka
// and the consumer materializes them into audit_events, which the List
// methods read.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// OutboxEntry is an outbox row waiting to be relayed.
type OutboxEntry struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

const insertOutbox = `
	INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// Append writes an audit event to the outbox table for Kafka publishing.
//
// When ctx carries a transaction the insert joins it inside a savepoint, so
// the event commits atomically with the caller's mutation while a failed
// insert leaves the caller's transaction usable.
func (s *Store) Append(ctx context.Context, event audit.AuditEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	args := []any{
		event.ID,
		string(event.BusinessObjectType),
		event.BusinessObjectID,
		string(event.ActivityType),
		payload,
		event.Timestamp,
	}

	tx, ok := txcontext.From(ctx)
	if !ok {
		if _, err := s.db.ExecContext(ctx, insertOutbox, args...); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT audit_append"); err != nil {
		return fmt.Errorf("create audit savepoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertOutbox, args...); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT audit_append"); rbErr != nil {
			return fmt.Errorf("insert outbox entry: %w (rollback to savepoint: %v)", err, rbErr)
		}
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT audit_append"); err != nil {
		return fmt.Errorf("release audit savepoint: %w", err)
	}
	return nil
}

// Send makes the store usable as an audit.Sink.
func (s *Store) Send(ctx context.Context, event audit.AuditEvent) error {
	return s.Append(ctx, event)
}

// FetchUnpublished returns up to limit outbox entries in creation order.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `
		SELECT id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var entry OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.Payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given outbox entries as relayed.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	query := `UPDATE outbox SET published_at = $2 WHERE id = ANY($1::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(raw), s.now()); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// AppendWithID inserts an audit event into the audit_events table with a specific ID.
// Used by the Kafka consumer to materialize events for querying.
// This is idempotent - duplicate inserts are ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			id, timestamp, category, originator_id, user_id, summary,
			business_object_id, business_object_type, activity_type,
			request_id, old_state, new_state, raw_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		eventID,
		event.Timestamp,
		string(event.Category()),
		event.OriginatorID,
		event.UserID,
		event.Summary,
		event.BusinessObjectID,
		string(event.BusinessObjectType),
		string(event.ActivityType),
		event.RequestID,
		event.Data.OldState,
		event.Data.NewState,
		event.Data.RawData,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectEvents = `
	SELECT id, timestamp, originator_id, user_id, summary,
		   business_object_id, business_object_type, activity_type,
		   request_id, old_state, new_state, raw_data
	FROM audit_events
`

// ListByBusinessObject returns the trail of one business object, newest first.
func (s *Store) ListByBusinessObject(ctx context.Context, objectType audit.BusinessObjectType, objectID string) ([]audit.AuditEvent, error) {
	query := selectEvents + `
		WHERE business_object_type = $1 AND business_object_id = $2
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(objectType), objectID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.AuditEvent, error) {
	query := selectEvents + `
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.AuditEvent, error) {
	var events []audit.AuditEvent
	for rows.Next() {
		var (
			event      audit.AuditEvent
			objectType string
			activity   string
		)
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.OriginatorID,
			&event.UserID,
			&event.Summary,
			&event.BusinessObjectID,
			&objectType,
			&activity,
			&event.RequestID,
			&event.Data.OldState,
			&event.Data.NewState,
			&event.Data.RawData,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.BusinessObjectType = audit.BusinessObjectType(objectType)
		event.ActivityType = audit.ActivityType(activity)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
