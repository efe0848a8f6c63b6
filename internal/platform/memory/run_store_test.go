package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun(t *testing.T) *domain.Run {
	t.Helper()
	run, err := domain.NewRun([]string{"https://example.com/a", "https://example.com/b"},
		domain.RunOptions{MaxWorkers: 2})
	require.NoError(t, err)
	return run
}

func TestRunStore_CreateAndGet(t *testing.T) {
	s := NewRunStore(nil)
	ctx := context.Background()
	run := newTestRun(t)

	require.NoError(t, s.Create(ctx, run))

	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	// Mutating the caller's copy does not leak into the store
	run.Items[0].Status = domain.ItemStatusAnalyzed
	got, err = s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusPending, got.Items[0].Status)
}

func TestRunStore_CreateErrors(t *testing.T) {
	s := NewRunStore(nil)
	ctx := context.Background()
	run := newTestRun(t)
	require.NoError(t, s.Create(ctx, run))

	assert.ErrorIs(t, s.Create(ctx, run), store.ErrDuplicate)

	invalid := newTestRun(t)
	invalid.MaxWorkers = 0
	err := s.Create(ctx, invalid)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrInvalidMaxWorkers)
}

func TestRunStore_GetMissing(t *testing.T) {
	s := NewRunStore(nil)

	_, err := s.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, store.ErrRunNotFound)
	assert.True(t, store.IsNotFoundError(err))
}

func TestRunStore_Update(t *testing.T) {
	s := NewRunStore(nil)
	ctx := context.Background()
	run := newTestRun(t)

	assert.ErrorIs(t, s.Update(ctx, run), store.ErrRunNotFound)
	require.NoError(t, s.Create(ctx, run))

	run.Start()
	require.NoError(t, s.Update(ctx, run))
	got, err := s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)

	require.NoError(t, run.Finish(domain.RunStatusCompleted, ""))
	require.NoError(t, s.Update(ctx, run))

	// A finished run is immutable
	run.Error = "rewritten"
	assert.ErrorIs(t, s.Update(ctx, run), store.ErrRunFinalized)
	got, err = s.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Error)
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	s := NewRunStore(nil)
	ctx := context.Background()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		run := newTestRun(t)
		run.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Create(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := s.List(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
	assert.Equal(t, ids[2], runs[2].ID)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRunStore_ConcurrentAccess(t *testing.T) {
	s := NewRunStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run := newTestRun(t)
			assert.NoError(t, s.Create(ctx, run))
			run.Start()
			assert.NoError(t, s.Update(ctx, run))
			_, err := s.Get(ctx, run.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	runs, err := s.List(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, runs, 20)
}

func TestRunStore_ListUnfinished(t *testing.T) {
	s := NewRunStore(nil)
	ctx := context.Background()
	base := time.Now().UTC()

	pending := newTestRun(t)
	pending.CreatedAt = base.Add(time.Second)
	running := newTestRun(t)
	running.CreatedAt = base
	done := newTestRun(t)
	for _, run := range []*domain.Run{pending, running, done} {
		require.NoError(t, s.Create(ctx, run))
	}
	running.Start()
	require.NoError(t, s.Update(ctx, running))
	require.NoError(t, done.Finish(domain.RunStatusFailed, "nothing analyzed"))
	require.NoError(t, s.Update(ctx, done))

	runs, err := s.ListUnfinished(ctx)

	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, running.ID, runs[0].ID)
	assert.Equal(t, pending.ID, runs[1].ID)
}
