package task

import (
	"context"
	"sync"
	"sync/atomic"
)

// Tracker joins goroutines left running by RunBatch calls that returned early.
// A zero Tracker is ready to use. Call Wait only after the RunBatch calls it
// tracks have returned.
type Tracker struct {
	wg     sync.WaitGroup
	active atomic.Int64
}

func (t *Tracker) add() {
	if t == nil {
		return
	}
	t.active.Add(1)
	t.wg.Add(1)
}

func (t *Tracker) done() {
	if t == nil {
		return
	}
	t.active.Add(-1)
	t.wg.Done()
}

// Active returns the number of tracked goroutines still running
func (t *Tracker) Active() int64 {
	return t.active.Load()
}

// Wait blocks until every tracked goroutine has finished or ctx ends
func (t *Tracker) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return cancellationError(ctx.Err())
	}
}
