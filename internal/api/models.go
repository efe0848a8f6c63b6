package api

import (
	"time"

	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/redact"
)

// CreateRunRequest defines the payload for starting a new run.
// Mode and MaxWorkers fall back to the server defaults when omitted.
type CreateRunRequest struct {
	URLs       []string `json:"urls"        validate:"required,min=1,max=256,dive,required,http_url"`
	Mode       string   `json:"mode"        validate:"omitempty,oneof=wait_all fail_fast"`
	MaxWorkers int      `json:"max_workers" validate:"gte=0,lte=64"`
	FailFast   bool     `json:"fail_fast"`
}

// RunItemResponse is one URL of a run.
type RunItemResponse struct {
	Index    int              `json:"index"`
	URL      string           `json:"url"`
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Analysis *domain.Analysis `json:"analysis,omitempty"`
}

// RunResponse defines the response data for a run.
type RunResponse struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Mode       string            `json:"mode"`
	MaxWorkers int               `json:"max_workers"`
	FailFast   bool              `json:"fail_fast"`
	Error      string            `json:"error,omitempty"`
	Counts     map[string]int    `json:"counts"`
	Items      []RunItemResponse `json:"items,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// RunListResponse defines the response for the run listing endpoint.
// Listed runs omit their items.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// runToResponse converts a domain.Run to a RunResponse. URLs are redacted.
func runToResponse(run *domain.Run, withItems bool) RunResponse {
	counts := make(map[string]int)
	for status, n := range run.CountItems() {
		counts[string(status)] = n
	}

	resp := RunResponse{
		ID:         run.ID.String(),
		Status:     string(run.Status),
		Mode:       run.Mode,
		MaxWorkers: run.MaxWorkers,
		FailFast:   run.FailFast,
		Error:      run.Error,
		Counts:     counts,
		CreatedAt:  run.CreatedAt,
		UpdatedAt:  run.UpdatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if !withItems {
		return resp
	}

	resp.Items = make([]RunItemResponse, len(run.Items))
	for i, item := range run.Items {
		resp.Items[i] = RunItemResponse{
			Index:    item.Index,
			URL:      redact.URL(item.URL),
			Status:   string(item.Status),
			Error:    item.Error,
			Analysis: item.Analysis,
		}
	}
	return resp
}
