package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ZeroValueWaitsImmediately(t *testing.T) {
	var tracker Tracker

	require.NoError(t, tracker.Wait(context.Background()))
	assert.Equal(t, int64(0), tracker.Active())
}

func TestTracker_WaitHonorsContext(t *testing.T) {
	tracker := &Tracker{}
	release := make(chan struct{})
	defer close(release)

	blocked := func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := RunBatch(ctx, []Producer[int]{blocked}, WaitAll, WithTracker(tracker))
	require.ErrorIs(t, err, ErrCancellationSignaled)
	assert.Equal(t, int64(1), tracker.Active())

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waitCancel()
	err = tracker.Wait(waitCtx)

	assert.ErrorIs(t, err, ErrCancellationSignaled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTracker_BoundedLauncherIsTracked(t *testing.T) {
	tracker := &Tracker{}
	producers := []Producer[int]{
		failing[int](time.Millisecond, assert.AnError),
		delayed(20*time.Millisecond, 1),
		delayed(20*time.Millisecond, 2),
		delayed(20*time.Millisecond, 3),
	}

	_, err := RunBatch(context.Background(), producers, WaitAllOrFailFast,
		WithMaxInFlight(1), WithTracker(tracker))
	require.ErrorIs(t, err, assert.AnError)

	// the launcher keeps starting the remaining producers in the background
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tracker.Wait(ctx))
	assert.Equal(t, int64(0), tracker.Active())
}
