package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/fanout/internal/api/shared"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthTimeout bounds the dependency check of one health request
const healthTimeout = 2 * time.Second

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// NewHealthHandler returns the handler for GET /health. db may be nil when
// runs are kept in memory.
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Store: "memory"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Store: "postgres"})
	}
}
