package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/fanout/internal/store"
)

// MaxListLimit caps the number of runs returned by one listing request.
const MaxListLimit = 500

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidID, paramName)
	}
	return id, nil
}

// getListLimit parses the optional "limit" query parameter.
// A missing parameter yields store.DefaultListLimit.
func getListLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultListLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxListLimit {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, raw)
	}
	return limit, nil
}
