package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/fanout/internal/api/shared"
	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/platform/logger"
	"github.com/phrazzld/fanout/internal/store"
)

// Submitter queues a stored run for background execution.
type Submitter interface {
	Submit(run *domain.Run) error
}

// RunDefaults holds the settings applied to runs that leave them unset.
type RunDefaults struct {
	Mode       string
	MaxWorkers int
}

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	runs      store.RunStore
	submitter Submitter
	defaults  RunDefaults
	logger    *slog.Logger
}

// NewRunHandler creates a new RunHandler
func NewRunHandler(
	runs store.RunStore,
	submitter Submitter,
	defaults RunDefaults,
	logger *slog.Logger,
) *RunHandler {
	if runs == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("run store cannot be nil for RunHandler")
	}
	if submitter == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("submitter cannot be nil for RunHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RunHandler{
		runs:      runs,
		submitter: submitter,
		defaults:  defaults,
		logger:    logger.With(slog.String("component", "run_handler")),
	}
}

// CreateRun handles POST /api/runs requests.
// The run is stored as pending and executed in the background, so the
// response is 202 Accepted with the pending run.
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateRunRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	opts := domain.RunOptions{
		Mode:       req.Mode,
		MaxWorkers: req.MaxWorkers,
		FailFast:   req.FailFast,
	}
	if opts.Mode == "" {
		opts.Mode = h.defaults.Mode
	}
	if opts.MaxWorkers == 0 {
		opts.MaxWorkers = h.defaults.MaxWorkers
	}

	run, err := domain.NewRun(req.URLs, opts)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.runs.Create(r.Context(), run); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.submitter.Submit(run.Clone()); err != nil {
		h.rejectRun(r, log, run, err)
		HandleAPIError(w, r, err, "")
		return
	}

	log.Info("run accepted",
		slog.String("run_id", run.ID.String()),
		slog.Int("url_count", len(run.URLs)),
		slog.String("mode", run.Mode))

	shared.RespondWithJSON(w, r, http.StatusAccepted, runToResponse(run, true))
}

// rejectRun marks a stored run that could not be queued as failed, so that
// it is not picked up again on the next start.
func (h *RunHandler) rejectRun(r *http.Request, log *slog.Logger, run *domain.Run, cause error) {
	if err := run.Finish(domain.RunStatusFailed, "not queued: "+cause.Error()); err != nil {
		log.Error("failed to mark rejected run", slog.String("error", err.Error()))
		return
	}
	if err := h.runs.Update(r.Context(), run); err != nil && !errors.Is(err, store.ErrRunFinalized) {
		log.Error("failed to store rejected run",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()))
	}
}

// GetRun handles GET /api/runs/{id} requests
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, runToResponse(run, true))
}

// ListRuns handles GET /api/runs requests, newest first
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := getListLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	resp := RunListResponse{
		Runs:  make([]RunResponse, len(runs)),
		Count: len(runs),
	}
	for i, run := range runs {
		resp.Runs[i] = runToResponse(run, false)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
