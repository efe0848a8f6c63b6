package domain

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/fanout/internal/redact"
	"github.com/phrazzld/fanout/internal/task"
)

// RunStatus represents the processing state of a run
type RunStatus string

// Possible run status values
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether a run in this status will not change again.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusPartial || s == RunStatusFailed
}

// ItemStatus represents what happened to a single URL of a run
type ItemStatus string

// Possible item status values
const (
	// ItemStatusPending means the fetch had not finished when the run ended.
	ItemStatusPending        ItemStatus = "pending"
	ItemStatusAnalyzed       ItemStatus = "analyzed"
	ItemStatusFetchFailed    ItemStatus = "fetch_failed"
	ItemStatusAnalysisFailed ItemStatus = "analysis_failed"
	// ItemStatusSkipped means the document was fetched but never analyzed.
	ItemStatusSkipped ItemStatus = "skipped"
)

// RunOptions holds the per-run execution settings.
type RunOptions struct {
	// Mode is a task completion mode name ("wait_all" or "fail_fast").
	Mode       string
	MaxWorkers int
	// FailFast stops dispatching analysis work after the first failure.
	FailFast bool
}

// Run is one fan-out/fan-in execution: every URL is fetched concurrently,
// then the fetched documents are analyzed on a bounded worker pool.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	URLs       []string   `json:"urls"`
	Mode       string     `json:"mode"`
	MaxWorkers int        `json:"max_workers"`
	FailFast   bool       `json:"fail_fast"`
	Status     RunStatus  `json:"status"`
	Items      []RunItem  `json:"items"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunItem records the outcome for one URL, at the URL's submission index.
type RunItem struct {
	Index    int        `json:"index"`
	URL      string     `json:"url"`
	Status   ItemStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	Analysis *Analysis  `json:"analysis,omitempty"`
}

// NewRun creates a pending Run for urls. An empty mode selects wait_all.
// It generates a new UUID, creates one pending item per URL,
// and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewRun(urls []string, opts RunOptions) (*Run, error) {
	if opts.Mode == "" {
		opts.Mode = task.WaitAll.String()
	}

	now := time.Now().UTC()
	run := &Run{
		ID:         uuid.New(),
		URLs:       append([]string(nil), urls...),
		Mode:       opts.Mode,
		MaxWorkers: opts.MaxWorkers,
		FailFast:   opts.FailFast,
		Status:     RunStatusPending,
		Items:      make([]RunItem, len(urls)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, u := range urls {
		run.Items[i] = RunItem{Index: i, URL: u, Status: ItemStatusPending}
	}

	if err := run.Validate(); err != nil {
		return nil, err
	}

	return run, nil
}

// Validate checks if the Run has valid data.
// Returns an error if any field fails validation.
func (r *Run) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRunID
	}

	if len(r.URLs) == 0 {
		return ErrEmptyURLs
	}

	for _, raw := range r.URLs {
		if err := validateURL(raw); err != nil {
			return err
		}
	}

	if _, err := task.ParseCompletionMode(r.Mode); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.Mode)
	}

	if r.MaxWorkers < 1 {
		return ErrInvalidMaxWorkers
	}

	if !isValidRunStatus(r.Status) {
		return ErrInvalidRunStatus
	}

	return nil
}

// CompletionMode returns the task completion mode of the run.
func (r *Run) CompletionMode() task.CompletionMode {
	// Validate guarantees the name parses
	mode, _ := task.ParseCompletionMode(r.Mode)
	return mode
}

// Start marks the run as running.
func (r *Run) Start() {
	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.UpdatedAt = now
}

// Finish sets the final status of the run and records errMsg, if any.
// Returns an error if the status is not terminal.
func (r *Run) Finish(status RunStatus, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %q is not a final status", ErrInvalidRunStatus, status)
	}

	now := time.Now().UTC()
	r.Status = status
	r.Error = errMsg
	r.FinishedAt = &now
	r.UpdatedAt = now
	return nil
}

// CountItems returns how many items are in each status.
func (r *Run) CountItems() map[ItemStatus]int {
	counts := make(map[ItemStatus]int)
	for _, item := range r.Items {
		counts[item.Status]++
	}
	return counts
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, redact.URL(raw))
	}
	return nil
}

// isValidRunStatus checks if the given status is a valid RunStatus.
func isValidRunStatus(status RunStatus) bool {
	switch status {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted,
		RunStatusPartial, RunStatusFailed:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of the run.
func (r *Run) Clone() *Run {
	c := *r
	c.URLs = append([]string(nil), r.URLs...)
	c.Items = make([]RunItem, len(r.Items))
	for i, item := range r.Items {
		if item.Analysis != nil {
			a := *item.Analysis
			item.Analysis = &a
		}
		c.Items[i] = item
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
