package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/fanout/internal/api/shared"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/pipeline"
	"github.com/phrazzld/fanout/internal/store"
)

// API-level request errors
var (
	// ErrInvalidID is returned when a path parameter is not a valid UUID.
	ErrInvalidID = errors.New("invalid ID format")

	// ErrInvalidLimit is returned when the list limit is not a positive integer
	// within MaxListLimit.
	ErrInvalidLimit = errors.New("invalid limit")
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrRunFinalized):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrEmptyURLs),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrInvalidMaxWorkers),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrInvalidLimit):
		return http.StatusBadRequest

	// The dispatcher cannot take more work right now
	case errors.Is(err, pipeline.ErrQueueFull),
		errors.Is(err, pipeline.ErrDispatcherStopped):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, store.ErrRunNotFound):
		return "Run not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrDuplicate):
		return "Run already exists"
	case errors.Is(err, store.ErrRunFinalized):
		return "Run already finished"
	case errors.Is(err, domain.ErrEmptyURLs):
		return "At least one URL is required"
	case errors.Is(err, domain.ErrInvalidURL):
		// The wrapped message names the offending URL, already redacted
		return "Invalid URL: " + strings.TrimPrefix(err.Error(), domain.ErrInvalidURL.Error()+": ")
	case errors.Is(err, domain.ErrInvalidMode):
		return "Invalid mode: must be wait_all or fail_fast"
	case errors.Is(err, domain.ErrInvalidMaxWorkers):
		return "Invalid max_workers: must be at least 1"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid run data"
	case errors.Is(err, ErrInvalidID):
		return "Invalid ID format"
	case errors.Is(err, ErrInvalidLimit):
		return fmt.Sprintf("Invalid limit: must be between 1 and %d", MaxListLimit)
	case errors.Is(err, pipeline.ErrQueueFull):
		return "Run queue is full, try again later"
	case errors.Is(err, pipeline.ErrDispatcherStopped):
		return "Server is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns validator errors into a short user-facing
// message naming the first failing field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "Validation error"
	}

	fe := validationErrs[0]
	field := fe.Field()
	// dive errors report the element as e.g. "URLs[2]"
	if i := strings.IndexByte(field, '['); i > 0 {
		field = field[:i]
	}
	return fmt.Sprintf("Invalid %s: %s", jsonFieldName(field), getValidationTagMessage(fe.Tag()))
}

// jsonFieldName maps request struct fields to their JSON names
func jsonFieldName(field string) string {
	switch field {
	case "URLs":
		return "urls"
	case "MaxWorkers":
		return "max_workers"
	case "FailFast":
		return "fail_fast"
	default:
		return strings.ToLower(field)
	}
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url", "http_url":
		return "invalid URL"
	case "min":
		return "too short"
	case "max", "lte":
		return "too large"
	case "gte", "gt":
		return "too small"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status code and safe message for err. A non-empty
// message overrides the default safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	// Conflicts are logged at warn
	var opts []shared.ResponseOption
	if status == http.StatusConflict {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
