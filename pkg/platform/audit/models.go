package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by retention and routing needs.
type EventCategory string

const (
	// CategoryCompliance covers changes with regulatory significance: who a
	// transaction was assigned to, what the case data said at a given time.
	// These require long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine edits useful for investigators but
	// with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// ActivityType tags what kind of change an event records.
type ActivityType string

const (
	ActivityTransactionAssigned    ActivityType = "TRANSACTION_ASSIGNED"
	ActivityTransactionUnassigned  ActivityType = "TRANSACTION_UNASSIGNED"
	ActivityTransactionReassigned  ActivityType = "TRANSACTION_REASSIGNED"
	ActivityCaseDynamicDataChanged ActivityType = "CASE_DYNAMIC_DATA_CHANGED"
	ActivityNoteChanged            ActivityType = "NOTE_CHANGED"
)

// activityCategories maps each activity to its category.
var activityCategories = map[ActivityType]EventCategory{
	ActivityTransactionAssigned:    CategoryCompliance,
	ActivityTransactionUnassigned:  CategoryCompliance,
	ActivityTransactionReassigned:  CategoryCompliance,
	ActivityCaseDynamicDataChanged: CategoryCompliance,
	ActivityNoteChanged:            CategoryOperations,
}

// Category returns the EventCategory for this activity.
// Unknown activities default to CategoryOperations.
func (a ActivityType) Category() EventCategory {
	if cat, ok := activityCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// BusinessObjectType names the kind of audited entity.
type BusinessObjectType string

const (
	BusinessObjectTransaction BusinessObjectType = "TRANSACTION"
	BusinessObjectCase        BusinessObjectType = "CASE"
	BusinessObjectNote        BusinessObjectType = "NOTE"
)

// Payload carries the state that changed. Map-shaped snapshots are JSON
// encoded; scalar snapshots are the raw value, empty when absent. A scalar
// that was null and one that was blank both encode as "", so consumers tell
// them apart by ActivityType: only an *_ASSIGNED or *_UNASSIGNED event has a
// null side.
type Payload struct {
	OldState string `json:"oldState"`
	NewState string `json:"newState"`
	RawData  string `json:"rawData,omitempty"`
}

// AuditEvent describes one detected change. It is passed by value so a sink
// always owns its copy.
type AuditEvent struct {
	ID                 uuid.UUID          `json:"id"`
	Timestamp          time.Time          `json:"timestamp"`
	OriginatorID       string             `json:"originatorId"`
	UserID             string             `json:"userId,omitempty"`
	Summary            string             `json:"summary"`
	BusinessObjectID   string             `json:"businessObjectId"`
	BusinessObjectType BusinessObjectType `json:"businessObjectType"`
	ActivityType       ActivityType       `json:"activityType"`
	RequestID          string             `json:"requestId,omitempty"`
	Data               Payload            `json:"data"`
}

// Category derives the event category from its activity type.
func (e AuditEvent) Category() EventCategory {
	return e.ActivityType.Category()
}

// Validate checks the fields every sink relies on for correlation.
func (e AuditEvent) Validate() error {
	var errs []error
	if e.ActivityType == "" {
		errs = append(errs, errors.New("audit event requires ActivityType"))
	}
	if e.BusinessObjectID == "" {
		errs = append(errs, errors.New("audit event requires BusinessObjectID"))
	}
	if e.BusinessObjectType == "" {
		errs = append(errs, errors.New("audit event requires BusinessObjectType"))
	}
	return errors.Join(errs...)
}
