package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/pipeline"
	"github.com/phrazzld/fanout/internal/platform/logger"
	"github.com/phrazzld/fanout/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"run not found", store.ErrRunNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("get failed: %w", store.ErrNotFound), http.StatusNotFound},
		{"duplicate", store.ErrDuplicate, http.StatusConflict},
		{"finalized", store.ErrRunFinalized, http.StatusConflict},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"empty urls", domain.ErrEmptyURLs, http.StatusBadRequest},
		{"invalid url", fmt.Errorf("%w: %q", domain.ErrInvalidURL, "ftp://x"), http.StatusBadRequest},
		{"invalid mode", domain.ErrInvalidMode, http.StatusBadRequest},
		{"invalid workers", domain.ErrInvalidMaxWorkers, http.StatusBadRequest},
		{"invalid id", ErrInvalidID, http.StatusBadRequest},
		{"invalid limit", ErrInvalidLimit, http.StatusBadRequest},
		{"queue full", pipeline.ErrQueueFull, http.StatusServiceUnavailable},
		{"stopped", pipeline.ErrDispatcherStopped, http.StatusServiceUnavailable},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
	assert.Equal(t, "Run not found", GetSafeErrorMessage(store.ErrRunNotFound))
	assert.Equal(t, `Invalid URL: "ftp://x"`,
		GetSafeErrorMessage(fmt.Errorf("%w: %q", domain.ErrInvalidURL, "ftp://x")))

	// internal details never leak
	internal := errors.New("pq: password authentication failed for user fanout")
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(internal))
}

func TestSanitizeValidationError(t *testing.T) {
	validate := validator.New()

	err := validate.Struct(CreateRunRequest{URLs: []string{"https://ok.example", "nope"}})
	assert.Equal(t, "Invalid urls: invalid URL", SanitizeValidationError(err))

	err = validate.Struct(CreateRunRequest{URLs: []string{"https://ok.example"}, MaxWorkers: 1000})
	assert.Equal(t, "Invalid max_workers: too large", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("plain")))
}

func TestHandleAPIError_LogLevels(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		expectedStatus   int
		expectedLogLevel string
	}{
		{
			name:             "finalized run is a warned conflict",
			err:              fmt.Errorf("%w: run is completed", store.ErrRunFinalized),
			expectedStatus:   http.StatusConflict,
			expectedLogLevel: "WARN",
		},
		{
			name:             "not found stays at debug",
			err:              store.ErrRunNotFound,
			expectedStatus:   http.StatusNotFound,
			expectedLogLevel: "DEBUG",
		},
		{
			name:             "queue full is a warned 503",
			err:              pipeline.ErrQueueFull,
			expectedStatus:   http.StatusServiceUnavailable,
			expectedLogLevel: "WARN",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logs, l := logger.NewTestLogger()
			ctx := logger.WithLogger(context.Background(), l)
			req := httptest.NewRequest(http.MethodGet, "/api/runs", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			HandleAPIError(w, req, tc.err, "")

			assert.Equal(t, tc.expectedStatus, w.Code)
			entries, err := logs.GetLogEntries()
			require.NoError(t, err)
			require.NotEmpty(t, entries)
			assert.Equal(t, tc.expectedLogLevel, entries[0]["level"])
		})
	}
}
