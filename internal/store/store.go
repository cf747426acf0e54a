package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/kodblock/internal/model"
)

// ErrNotFound is returned when a draft does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for drafts.
type Store interface {
	// Draft CRUD
	CreateDraft(ctx context.Context, draft *model.Draft) error
	GetDraft(ctx context.Context, id string) (*model.Draft, error)
	ListDrafts(ctx context.Context, filter model.DraftFilter) ([]*model.Draft, int, error) // returns drafts, total count, error
	UpdateDraft(ctx context.Context, draft *model.Draft) error
	DeleteDraft(ctx context.Context, id string) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, draftID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
