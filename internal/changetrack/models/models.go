// Package models holds the tracked business entities the shipped change
// handlers read. The change-tracking core only ever reads these.
package models

import (
	"time"

	"casetrail/internal/changetrack/tree"
)

// Transaction is a monitored financial transaction attached to a case.
type Transaction struct {
	ID         string  `json:"id"`
	CaseID     string  `json:"caseId"`
	AssignedTo *string `json:"assignedTo"`
	Amount     int64   `json:"amount"`
	Currency   string  `json:"currency"`
}

// Case groups transactions and notes under an investigation. DynamicData is
// described by a per-organization schema.
type Case struct {
	ID          string
	Name        string
	DynamicData *tree.Tree
}

// Note is an investigator note. Its JSON tags define the field map used for
// diffing.
type Note struct {
	ID        string    `json:"-"`
	CaseID    string    `json:"caseId"`
	Title     string    `json:"title"`
	Body      *string   `json:"body,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"-"`
}
