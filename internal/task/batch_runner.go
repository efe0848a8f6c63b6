package task

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Outcome is the result of one producer. Index is the producer's position in
// the submitted slice.
type Outcome[T any] struct {
	Index  int
	Value  T
	Err    error
	Status TaskStatus
}

// Succeeded reports whether the producer completed without error
func (o Outcome[T]) Succeeded() bool {
	return o.Status == TaskStatusCompleted
}

// BatchResult holds one Outcome per submitted producer, in submission order
type BatchResult[T any] struct {
	Outcomes []Outcome[T]
}

// Len returns the number of outcomes, always equal to the number of producers
func (r BatchResult[T]) Len() int {
	return len(r.Outcomes)
}

// Values returns the successful values in submission order
func (r BatchResult[T]) Values() []T {
	values := make([]T, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			values = append(values, o.Value)
		}
	}
	return values
}

// Failures returns the failed producers in submission order
func (r BatchResult[T]) Failures() []*ProducerFailure {
	var failures []*ProducerFailure
	for _, o := range r.Outcomes {
		if o.Status == TaskStatusFailed {
			failures = append(failures, &ProducerFailure{Index: o.Index, Err: o.Err})
		}
	}
	return failures
}

// Completed returns how many producers reached a terminal status before the
// call returned
func (r BatchResult[T]) Completed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status.IsTerminal() {
			n++
		}
	}
	return n
}

type batchOptions struct {
	maxInFlight int64
	tracker     *Tracker
	observer    Observer
}

// BatchOption configures a RunBatch call
type BatchOption func(*batchOptions)

// WithMaxInFlight bounds how many producers run at the same time.
// Zero or a negative value means unbounded.
func WithMaxInFlight(n int) BatchOption {
	return func(o *batchOptions) {
		o.maxInFlight = int64(n)
	}
}

// WithTracker registers every goroutine started by the call with t, so work
// left running by WaitAllOrFailFast or by cancellation can be joined later.
// Without a tracker such work is detached.
func WithTracker(t *Tracker) BatchOption {
	return func(o *batchOptions) {
		o.tracker = t
	}
}

// WithObserver reports producer status transitions to fn
func WithObserver(fn Observer) BatchOption {
	return func(o *batchOptions) {
		o.observer = fn
	}
}

type completion[T any] struct {
	index int
	value T
	err   error
}

// batch is the bookkeeping of one RunBatch call. Nothing in it outlives the
// call except the buffered done channel held by still-running producers.
type batch[T any] struct {
	producers []Producer[T]
	done      chan completion[T]
	started   []atomic.Bool
	tracker   *Tracker
	observer  Observer
}

// RunBatch starts every producer concurrently and gathers their outcomes in
// submission order.
//
// In WaitAll mode the call returns after all producers completed; if any
// failed the error is a *BatchPartialFailure and the result still carries the
// successes. In WaitAllOrFailFast mode the call returns a *ProducerFailure as
// soon as one is observed; producers that are still running keep running.
//
// Cancelling ctx stops the wait and returns an error matching
// ErrCancellationSignaled. Producers receive the same ctx and may observe the
// cancellation themselves. Producers are never retried.
func RunBatch[T any](
	ctx context.Context,
	producers []Producer[T],
	mode CompletionMode,
	opts ...BatchOption,
) (BatchResult[T], error) {
	var options batchOptions
	for _, opt := range opts {
		opt(&options)
	}

	n := len(producers)
	result := BatchResult[T]{Outcomes: make([]Outcome[T], n)}
	for i := range result.Outcomes {
		result.Outcomes[i] = Outcome[T]{Index: i, Status: TaskStatusPending}
	}
	if n == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, cancellationError(err)
	}

	b := &batch[T]{
		producers: producers,
		// buffered so a producer finishing after the call returned never blocks
		done:     make(chan completion[T], n),
		started:  make([]atomic.Bool, n),
		tracker:  options.tracker,
		observer: options.observer,
	}

	if options.maxInFlight > 0 {
		b.launchBounded(ctx, options.maxInFlight)
	} else {
		for i := range producers {
			b.launch(ctx, i, nil)
		}
	}

	for received := 0; received < n; received++ {
		select {
		case <-ctx.Done():
			b.markUnfinished(result.Outcomes)
			return result, cancellationError(ctx.Err())

		case c := <-b.done:
			o := &result.Outcomes[c.index]
			o.Value = c.value
			o.Err = c.err
			if c.err == nil {
				o.Status = TaskStatusCompleted
				continue
			}

			o.Status = TaskStatusFailed
			if mode == WaitAllOrFailFast {
				b.markUnfinished(result.Outcomes)
				return result, &ProducerFailure{Index: c.index, Err: c.err}
			}
		}
	}

	failures := result.Failures()
	if len(failures) > 0 {
		return result, &BatchPartialFailure{
			Succeeded: n - len(failures),
			Failures:  failures,
		}
	}

	return result, nil
}

// launchBounded starts producers from a background goroutine, holding one
// semaphore slot per running producer. The caller goes straight to collecting.
func (b *batch[T]) launchBounded(ctx context.Context, limit int64) {
	sem := semaphore.NewWeighted(limit)

	b.tracker.add()
	go func() {
		defer b.tracker.done()
		for i := range b.producers {
			if err := sem.Acquire(ctx, 1); err != nil {
				// cancelled; the remaining producers are never started
				return
			}
			b.launch(ctx, i, func() { sem.Release(1) })
		}
	}()
}

func (b *batch[T]) launch(ctx context.Context, index int, release func()) {
	b.tracker.add()
	go func() {
		defer b.tracker.done()
		if release != nil {
			defer release()
		}

		b.started[index].Store(true)
		reporter := &statusReporter{index: index, observer: b.observer}
		reporter.report(TaskStatusRunning)

		value, err := b.execute(withReporter(ctx, reporter), index)
		if err != nil {
			reporter.report(TaskStatusFailed)
		} else {
			reporter.report(TaskStatusCompleted)
		}

		b.done <- completion[T]{index: index, value: value, err: err}
	}()
}

// execute runs one producer and converts a panic into a *PanicError
func (b *batch[T]) execute(ctx context.Context, index int) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return b.producers[index](ctx)
}

// markUnfinished sets the status of outcomes that were not collected before
// the call returned
func (b *batch[T]) markUnfinished(outcomes []Outcome[T]) {
	for i := range outcomes {
		if outcomes[i].Status.IsTerminal() {
			continue
		}
		if b.started[i].Load() {
			outcomes[i].Status = TaskStatusRunning
		} else {
			outcomes[i].Status = TaskStatusPending
		}
	}
}
