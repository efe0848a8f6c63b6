package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/fanout/internal/domain"
)

// DefaultListLimit is used by List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// RunStore defines the interface for run persistence.
type RunStore interface {
	// Create saves a new run.
	// Returns validation errors from the domain Run if data is invalid,
	// and ErrDuplicate if a run with the same ID exists.
	Create(ctx context.Context, run *domain.Run) error

	// Update replaces the stored state of an existing run.
	// Returns ErrRunNotFound if the run does not exist and
	// ErrRunFinalized if the stored run already reached a final status.
	Update(ctx context.Context, run *domain.Run) error

	// Get retrieves a run by its ID.
	// Returns ErrRunNotFound if the run does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// List returns up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]*domain.Run, error)

	// ListUnfinished returns every pending or running run, oldest first.
	// Used to pick up runs interrupted by a restart.
	ListUnfinished(ctx context.Context) ([]*domain.Run, error)
}
