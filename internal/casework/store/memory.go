// Package store keeps case entities in memory. Reads and writes copy, so a
// caller's snapshot never aliases stored state.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"casetrail/internal/changetrack/models"
	"casetrail/pkg/platform/sentinel"
)

// InMemory stores cases, transactions and notes.
type InMemory struct {
	mu           sync.RWMutex
	cases        map[string]*models.Case
	transactions map[string]*models.Transaction
	notes        map[string]*models.Note
}

func NewInMemory() *InMemory {
	return &InMemory{
		cases:        make(map[string]*models.Case),
		transactions: make(map[string]*models.Transaction),
		notes:        make(map[string]*models.Note),
	}
}

func (s *InMemory) FindCase(_ context.Context, id string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", id, sentinel.ErrNotFound)
	}
	return copyCase(c), nil
}

func (s *InMemory) SaveCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = copyCase(c)
	return nil
}

func (s *InMemory) FindTransaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, sentinel.ErrNotFound)
	}
	return copyTransaction(tx), nil
}

func (s *InMemory) SaveTransaction(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

func (s *InMemory) FindNote(_ context.Context, id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, sentinel.ErrNotFound)
	}
	return copyNote(n), nil
}

func (s *InMemory) SaveNote(_ context.Context, n *models.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[n.ID] = copyNote(n)
	return nil
}

func copyCase(c *models.Case) *models.Case {
	out := *c
	out.DynamicData = c.DynamicData.Clone()
	return &out
}

func copyTransaction(tx *models.Transaction) *models.Transaction {
	out := *tx
	if tx.AssignedTo != nil {
		assignee := *tx.AssignedTo
		out.AssignedTo = &assignee
	}
	return &out
}

func copyNote(n *models.Note) *models.Note {
	out := *n
	if n.Body != nil {
		body := *n.Body
		out.Body = &body
	}
	out.Tags = slices.Clone(n.Tags)
	return &out
}
