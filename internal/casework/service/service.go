// Package service applies investigator edits to cases, transactions and notes.
// Every edit runs through a change handler so the audit trail records what
// actually changed.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"casetrail/internal/changetrack/handler"
	"casetrail/internal/changetrack/models"
	"casetrail/internal/changetrack/tree"
	platformstrings "casetrail/pkg/platform/strings"
)

// ErrInvalidInput marks a request the caller has to fix.
var ErrInvalidInput = errors.New("invalid input")

// Repository persists the tracked entities.
type Repository interface {
	FindCase(ctx context.Context, id string) (*models.Case, error)
	SaveCase(ctx context.Context, c *models.Case) error
	FindTransaction(ctx context.Context, id string) (*models.Transaction, error)
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	FindNote(ctx context.Context, id string) (*models.Note, error)
	SaveNote(ctx context.Context, n *models.Note) error
}

// UnitOfWork runs fn atomically. Audit sinks that understand the transaction
// carried by ctx write their event in the same unit.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noTx struct{}

func (noTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service implements the case edits.
type Service struct {
	repo    Repository
	tracker *handler.Tracker
	schema  *tree.Schema
	uow     UnitOfWork
}

// Option configures the Service.
type Option func(*Service)

// WithSchema sets the schema describing case dynamic data.
func WithSchema(schema *tree.Schema) Option {
	return func(s *Service) {
		s.schema = schema
	}
}

// WithUnitOfWork runs every edit inside uow.
func WithUnitOfWork(uow UnitOfWork) Option {
	return func(s *Service) {
		s.uow = uow
	}
}

// New creates the service.
func New(repo Repository, tracker *handler.Tracker, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if tracker == nil {
		return nil, errors.New("change tracker is required")
	}
	s := &Service{repo: repo, tracker: tracker, uow: noTx{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateCase stores a new case. Creation itself is not audited.
func (s *Service) CreateCase(ctx context.Context, id, name string, dynamic map[string]any) (*models.Case, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: case id is required", ErrInvalidInput)
	}
	c := &models.Case{ID: id, Name: name}
	if len(dynamic) > 0 {
		if s.schema == nil {
			return nil, fmt.Errorf("%w: no dynamic data schema configured", ErrInvalidInput)
		}
		data, err := tree.FromMap(s.schema, dynamic)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		c.DynamicData = data
	}
	if err := s.repo.SaveCase(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCaseDynamicData merges patch into the case's dynamic data. Nested
// properties take nested objects; a nil value clears a property.
func (s *Service) UpdateCaseDynamicData(ctx context.Context, id string, patch map[string]any) (*models.Case, error) {
	if s.schema == nil {
		return nil, fmt.Errorf("%w: no dynamic data schema configured", ErrInvalidInput)
	}
	var updated *models.Case
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.FindCase(ctx, id)
		if err != nil {
			return err
		}
		err = handler.Track(ctx, s.tracker.CaseDynamicData(), c, "", func(ctx context.Context) error {
			if c.DynamicData == nil {
				c.DynamicData = tree.New(s.schema)
			}
			if err := applyPatch(c.DynamicData, patch); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return s.repo.SaveCase(ctx, c)
		})
		updated = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateTransaction stores a new transaction.
func (s *Service) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx == nil || strings.TrimSpace(tx.ID) == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	return s.repo.SaveTransaction(ctx, tx)
}

// AssignTransaction sets or clears the transaction's assignee.
func (s *Service) AssignTransaction(ctx context.Context, id string, assignee *string) (*models.Transaction, error) {
	if assignee != nil && strings.TrimSpace(*assignee) == "" {
		return nil, fmt.Errorf("%w: assignee must not be blank", ErrInvalidInput)
	}
	var updated *models.Transaction
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		tx, err := s.repo.FindTransaction(ctx, id)
		if err != nil {
			return err
		}
		err = handler.Track(ctx, s.tracker.TransactionAssignment(), tx, "", func(ctx context.Context) error {
			tx.AssignedTo = assignee
			return s.repo.SaveTransaction(ctx, tx)
		})
		updated = tx
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// NoteUpdate lists the note fields to change; nil fields are left alone. An
// empty Body clears the body. Tags are trimmed and deduplicated.
type NoteUpdate struct {
	Title *string
	Body  *string
	Tags  *[]string
}

// CreateNote stores a new note.
func (s *Service) CreateNote(ctx context.Context, note *models.Note) error {
	if note == nil || strings.TrimSpace(note.ID) == "" {
		return fmt.Errorf("%w: note id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(note.Title) == "" {
		return fmt.Errorf("%w: note title is required", ErrInvalidInput)
	}
	note.Tags = platformstrings.DedupeAndTrim(note.Tags)
	return s.repo.SaveNote(ctx, note)
}

// UpdateNote applies update to the note.
func (s *Service) UpdateNote(ctx context.Context, id string, update NoteUpdate) (*models.Note, error) {
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, fmt.Errorf("%w: note title must not be blank", ErrInvalidInput)
	}
	var updated *models.Note
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		note, err := s.repo.FindNote(ctx, id)
		if err != nil {
			return err
		}
		err = handler.Track(ctx, s.tracker.Note(), note, "", func(ctx context.Context) error {
			if update.Title != nil {
				note.Title = *update.Title
			}
			if update.Body != nil {
				note.Body = update.Body
				if *update.Body == "" {
					note.Body = nil
				}
			}
			if update.Tags != nil {
				note.Tags = platformstrings.DedupeAndTrim(*update.Tags)
			}
			return s.repo.SaveNote(ctx, note)
		})
		updated = note
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyPatch(t *tree.Tree, patch map[string]any) error {
	for name, value := range patch {
		prop, ok := t.Schema().Lookup(name)
		if !ok {
			return fmt.Errorf("unknown property %q", name)
		}
		if value == nil {
			if prop.EffectiveKind() == tree.KindComputed {
				return fmt.Errorf("property %q is computed and cannot be set", name)
			}
			t.Unset(name)
			continue
		}
		if prop.EffectiveKind() != tree.KindNested {
			if err := t.Set(name, value); err != nil {
				return err
			}
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("nested property %q expects an object", name)
		}
		child, err := t.Child(name)
		if err != nil {
			return err
		}
		if err := applyPatch(child, nested); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
