package task

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the orchestrator
var (
	// ErrCancellationSignaled indicates the caller abandoned the call through its
	// context. It is not a producer or consumer fault.
	ErrCancellationSignaled = errors.New("cancellation signaled")

	// ErrInvalidWorkerCount is returned by RunStage when maxWorkers is below 1.
	ErrInvalidWorkerCount = errors.New("max workers must be at least 1")

	// ErrUnknownMode is returned when a completion mode name is not recognized.
	ErrUnknownMode = errors.New("unknown completion mode")
)

// cancellationError wraps both ErrCancellationSignaled and the context cause,
// so errors.Is matches either.
func cancellationError(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancellationSignaled, cause)
}

// PanicError is produced when a producer or transform panics
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ProducerFailure reports that the producer at Index failed
type ProducerFailure struct {
	Index int
	Err   error
}

// Error implements the error interface
func (e *ProducerFailure) Error() string {
	return fmt.Sprintf("producer %d failed: %v", e.Index, e.Err)
}

// Unwrap returns the underlying cause
func (e *ProducerFailure) Unwrap() error {
	return e.Err
}

// BatchPartialFailure is returned by RunBatch in WaitAll mode when one or more
// producers failed. The accompanying BatchResult still holds every success.
type BatchPartialFailure struct {
	// Succeeded is the number of producers that completed successfully
	Succeeded int

	// Failures holds one entry per failed producer in submission order
	Failures []*ProducerFailure
}

// Error implements the error interface
func (e *BatchPartialFailure) Error() string {
	first := e.First()
	if first == nil {
		return "batch partially failed"
	}
	return fmt.Sprintf("batch partially failed: %d of %d producers failed, first: %v",
		len(e.Failures), len(e.Failures)+e.Succeeded, first)
}

// First returns the first failure in submission order
func (e *BatchPartialFailure) First() *ProducerFailure {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[0]
}

// Unwrap exposes every producer failure to errors.Is and errors.As
func (e *BatchPartialFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// ItemFailure reports that the transform failed for the input at Index
type ItemFailure struct {
	Index int
	Err   error
}

// Error implements the error interface
func (e *ItemFailure) Error() string {
	return fmt.Sprintf("item %d failed: %v", e.Index, e.Err)
}

// Unwrap returns the underlying cause
func (e *ItemFailure) Unwrap() error {
	return e.Err
}

// StageError aggregates the per-item failures of a RunStage call. The outputs
// returned alongside it keep every successfully computed value.
type StageError struct {
	// Failures holds one entry per failed item in input order
	Failures []*ItemFailure

	// Skipped lists the input indices that were never dispatched, either
	// because of fail-fast or because the caller cancelled
	Skipped []int

	// Cause is the cancellation error when the caller's context ended the stage
	Cause error
}

// Error implements the error interface
func (e *StageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage failed: %d failed, %d skipped", len(e.Failures), len(e.Skipped))
	if len(e.Failures) > 0 {
		fmt.Fprintf(&b, ", first: %v", e.Failures[0])
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes item failures and the cancellation cause
func (e *StageError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
