package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/platform/logger"
	"github.com/phrazzld/fanout/internal/store"
)

// RunStore implements store.RunStore on a map guarded by a RWMutex.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[uuid.UUID]*domain.Run
	logger *slog.Logger
}

// Ensure RunStore implements store.RunStore interface
var _ store.RunStore = (*RunStore)(nil)

// NewRunStore creates an empty RunStore.
// If logger is nil, a default logger will be used.
func NewRunStore(logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{
		runs:   make(map[uuid.UUID]*domain.Run),
		logger: logger.With(slog.String("component", "memory_run_store")),
	}
}

// Create implements store.RunStore.Create
func (s *RunStore) Create(ctx context.Context, run *domain.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("%w: run %s", store.ErrDuplicate, run.ID)
	}
	s.runs[run.ID] = run.Clone()

	logger.FromContextOrDefault(ctx, s.logger).Debug("run created",
		slog.String("run_id", run.ID.String()),
		slog.Int("url_count", len(run.URLs)))
	return nil
}

// Update implements store.RunStore.Update
func (s *RunStore) Update(ctx context.Context, run *domain.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.runs[run.ID]
	if !exists {
		return store.ErrRunNotFound
	}
	if current.Status.IsTerminal() {
		return fmt.Errorf("%w: run %s is %s", store.ErrRunFinalized, run.ID, current.Status)
	}
	s.runs[run.ID] = run.Clone()

	logger.FromContextOrDefault(ctx, s.logger).Debug("run updated",
		slog.String("run_id", run.ID.String()),
		slog.String("status", string(run.Status)))
	return nil
}

// Get implements store.RunStore.Get
func (s *RunStore) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, store.ErrRunNotFound
	}
	return run.Clone(), nil
}

// List implements store.RunStore.List
func (s *RunStore) List(ctx context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	s.mu.RLock()
	runs := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID.String() > runs[j].ID.String()
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListUnfinished implements store.RunStore.ListUnfinished
func (s *RunStore) ListUnfinished(ctx context.Context) ([]*domain.Run, error) {
	s.mu.RLock()
	var runs []*domain.Run
	for _, run := range s.runs {
		if !run.Status.IsTerminal() {
			runs = append(runs, run.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}
