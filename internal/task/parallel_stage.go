package task

import (
	"context"
	"runtime/debug"
)

type stageOptions struct {
	failFast bool
}

// StageOption configures a RunStage call
type StageOption func(*stageOptions)

// WithFailFast stops dispatching unstarted inputs once the first transform
// fails. Items already running finish normally.
func WithFailFast() StageOption {
	return func(o *stageOptions) {
		o.failFast = true
	}
}

// RunStage applies transform to every input on a pool of at most maxWorkers
// goroutines. A free worker takes the next unprocessed input, so uneven item
// cost does not leave workers idle.
//
// The returned slice always has len(inputs) entries and outputs[i] belongs to
// inputs[i]; entries for failed or skipped inputs hold the zero value. When any
// input failed or was never dispatched the error is a *StageError. By default a
// failure does not affect sibling items. Cancelling ctx prevents unstarted
// inputs from being dispatched.
func RunStage[V, R any](
	ctx context.Context,
	inputs []V,
	transform Transform[V, R],
	maxWorkers int,
	opts ...StageOption,
) ([]R, error) {
	if maxWorkers < 1 {
		return nil, ErrInvalidWorkerCount
	}

	var options stageOptions
	for _, opt := range opts {
		opt(&options)
	}

	n := len(inputs)
	outputs := make([]R, n)
	if n == 0 {
		return outputs, nil
	}

	// each index is written by exactly one worker; the caller reads them
	// only after Wait
	attempted := make([]bool, n)
	errs := make([]error, n)

	var pool *WorkerPool
	var err error
	pool, err = NewWorkerPool(
		ctx,
		NewFilledIndexQueue(n),
		WorkerPoolConfig{WorkerCount: min(maxWorkers, n)},
		func(_ int, index int) {
			attempted[index] = true

			out, err := applyTransform(transform, inputs[index])
			if err != nil {
				errs[index] = err
				if options.failFast {
					pool.StopDispatch()
				}
				return
			}
			outputs[index] = out
		},
	)
	if err != nil {
		return nil, err
	}

	pool.Start()
	pool.Wait()

	stageErr := &StageError{}
	for i := 0; i < n; i++ {
		switch {
		case errs[i] != nil:
			stageErr.Failures = append(stageErr.Failures, &ItemFailure{Index: i, Err: errs[i]})
		case !attempted[i]:
			stageErr.Skipped = append(stageErr.Skipped, i)
		}
	}

	if len(stageErr.Failures) == 0 && len(stageErr.Skipped) == 0 {
		return outputs, nil
	}
	if len(stageErr.Skipped) > 0 && ctx.Err() != nil {
		stageErr.Cause = cancellationError(ctx.Err())
	}

	return outputs, stageErr
}

// applyTransform runs transform and converts a panic into a *PanicError
func applyTransform[V, R any](transform Transform[V, R], input V) (out R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return transform(input)
}
