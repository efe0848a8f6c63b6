package task

import (
	"context"
)

// TaskStatus represents the current state of a unit of work
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSuspended TaskStatus = "suspended"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the status is final
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Producer is an asynchronous, I/O-bound unit of work that yields exactly one
// value or one error. It runs on its own goroutine and should honor ctx.
type Producer[T any] func(ctx context.Context) (T, error)

// Transform is a synchronous, CPU-bound function applied to one produced value.
// It must not block on I/O.
type Transform[V, R any] func(V) (R, error)

// Observer receives status transitions for the producer at index.
// It is called from producer goroutines and must be safe for concurrent use.
type Observer func(index int, status TaskStatus)

// CompletionMode selects when RunBatch returns
type CompletionMode int

const (
	// WaitAll returns once every producer has completed.
	WaitAll CompletionMode = iota

	// WaitAllOrFailFast returns at the first observed failure and leaves the
	// remaining producers running in the background.
	WaitAllOrFailFast
)

// String returns the configuration name of the mode
func (m CompletionMode) String() string {
	switch m {
	case WaitAll:
		return "wait_all"
	case WaitAllOrFailFast:
		return "fail_fast"
	default:
		return "unknown"
	}
}

// ParseCompletionMode converts a configuration name into a CompletionMode.
// An empty name selects WaitAll.
func ParseCompletionMode(name string) (CompletionMode, error) {
	switch name {
	case "", "wait_all":
		return WaitAll, nil
	case "fail_fast":
		return WaitAllOrFailFast, nil
	default:
		return WaitAll, ErrUnknownMode
	}
}

// statusReporter is carried in a producer's context so Suspend can report
// transitions back to the observer of the batch.
type statusReporter struct {
	index    int
	observer Observer
}

func (r *statusReporter) report(status TaskStatus) {
	if r == nil || r.observer == nil {
		return
	}
	r.observer(r.index, status)
}

type reporterKey struct{}

func withReporter(ctx context.Context, r *statusReporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

func reporterFromContext(ctx context.Context) *statusReporter {
	r, _ := ctx.Value(reporterKey{}).(*statusReporter)
	return r
}

// Suspend runs wait while the calling producer is marked as suspended.
// Producers wrap the part of their work that waits on an external event
// (a network round trip, a timer) so observers can see the transition.
// Outside of RunBatch it simply calls wait.
func Suspend(ctx context.Context, wait func(ctx context.Context) error) error {
	r := reporterFromContext(ctx)
	r.report(TaskStatusSuspended)
	defer r.report(TaskStatusRunning)
	return wait(ctx)
}
