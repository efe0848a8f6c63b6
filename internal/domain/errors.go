// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common validation errors for runs.
var (
	// ErrEmptyURLs is returned when a run is created without URLs.
	ErrEmptyURLs = errors.New("run must contain at least one URL")

	// ErrInvalidURL is returned when a URL is not an absolute http(s) URL.
	// It is wrapped with the offending (redacted) URL.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidMode is returned when the completion mode is not recognized.
	ErrInvalidMode = errors.New("invalid completion mode")

	// ErrInvalidMaxWorkers is returned when the stage worker count is below one.
	ErrInvalidMaxWorkers = errors.New("max workers must be at least 1")

	// ErrEmptyRunID is returned when a run has a nil ID.
	ErrEmptyRunID = errors.New("run ID cannot be empty")

	// ErrInvalidRunStatus is returned when a run status is not valid.
	ErrInvalidRunStatus = errors.New("invalid run status")
)
