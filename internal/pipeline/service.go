package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/platform/logger"
	"github.com/phrazzld/fanout/internal/redact"
	"github.com/phrazzld/fanout/internal/store"
	"github.com/phrazzld/fanout/internal/task"
)

// Messages recorded on items that were never fetched or never analyzed
const (
	msgFetchAbandoned    = "fetch abandoned after an earlier failure"
	msgFetchCancelled    = "run cancelled before the fetch completed"
	msgNotAnalyzed       = "analysis skipped after an earlier failure"
	msgAnalysisCancelled = "run cancelled before the analysis started"
)

// Fetcher builds one producer per URL.
type Fetcher interface {
	Producers(urls []string) []task.Producer[domain.Document]
}

// ServiceConfig holds the execution settings shared by every run.
type ServiceConfig struct {
	// MaxInFlight bounds concurrent fetches per run; 0 means unbounded.
	MaxInFlight int
}

// Service executes runs and records their outcome in the run store.
type Service struct {
	runs       store.RunStore
	fetcher    Fetcher
	analyze    task.Transform[domain.Document, domain.Analysis]
	config     ServiceConfig
	metrics    *Metrics
	logger     *slog.Logger
	stragglers *task.Tracker
}

// NewService creates a Service. metrics may be nil.
// If logger is nil, a default logger will be used.
func NewService(
	runs store.RunStore,
	fetcher Fetcher,
	config ServiceConfig,
	metrics *Metrics,
	logger *slog.Logger,
) (*Service, error) {
	if runs == nil {
		return nil, fmt.Errorf("run store cannot be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if config.MaxInFlight < 0 {
		return nil, fmt.Errorf("max in flight cannot be negative: %d", config.MaxInFlight)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		runs:       runs,
		fetcher:    fetcher,
		analyze:    Analyze,
		config:     config,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "pipeline")),
		stragglers: &task.Tracker{},
	}, nil
}

// Execute runs the fetch batch and the analysis stage for run, then stores
// the final state. Fetch and analysis failures are recorded on the run and
// do not make Execute fail; only store errors are returned.
func (s *Service) Execute(ctx context.Context, run *domain.Run) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("run_id", run.ID.String()))
	started := time.Now()

	run.Start()
	if err := s.runs.Update(ctx, run); err != nil {
		log.Error("failed to mark run as running", slog.String("error", err.Error()))
		return fmt.Errorf("failed to start run: %w", err)
	}
	s.metrics.runStarted()
	log.Info("run started",
		slog.Int("url_count", len(run.URLs)),
		slog.String("mode", run.Mode),
		slog.Int("max_workers", run.MaxWorkers))

	status, summary := s.process(ctx, log, run)

	if err := run.Finish(status, summary); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	s.metrics.runFinished(run, time.Since(started))

	// The final state is stored even if the caller's context was cancelled
	if err := s.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to store run result", slog.String("error", err.Error()))
		return fmt.Errorf("failed to store run result: %w", err)
	}

	counts := run.CountItems()
	log.Info("run finished",
		slog.String("status", string(run.Status)),
		slog.Int("analyzed", counts[domain.ItemStatusAnalyzed]),
		slog.Int("fetch_failed", counts[domain.ItemStatusFetchFailed]),
		slog.Int("analysis_failed", counts[domain.ItemStatusAnalysisFailed]),
		slog.Int("skipped", counts[domain.ItemStatusSkipped]),
		slog.Int("pending", counts[domain.ItemStatusPending]),
		slog.Int64("stragglers", s.stragglers.Active()),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// WaitStragglers blocks until every fetch left running by fail-fast or
// cancelled runs has returned, or ctx ends.
func (s *Service) WaitStragglers(ctx context.Context) error {
	return s.stragglers.Wait(ctx)
}

// process fills run.Items and returns the final status with a summary message.
func (s *Service) process(ctx context.Context, log *slog.Logger, run *domain.Run) (domain.RunStatus, string) {
	opts := []task.BatchOption{
		task.WithTracker(s.stragglers),
		task.WithObserver(func(_ int, status task.TaskStatus) {
			s.metrics.taskTransition(status)
		}),
	}
	if s.config.MaxInFlight > 0 {
		opts = append(opts, task.WithMaxInFlight(s.config.MaxInFlight))
	}

	batch, batchErr := task.RunBatch(ctx, s.fetcher.Producers(run.URLs), run.CompletionMode(), opts...)

	var (
		docs       []domain.Document
		docIndexes []int
	)
	for i, outcome := range batch.Outcomes {
		item := &run.Items[i]
		switch {
		case outcome.Succeeded():
			docs = append(docs, outcome.Value)
			docIndexes = append(docIndexes, i)
		case outcome.Status == task.TaskStatusFailed:
			item.Status = domain.ItemStatusFetchFailed
			item.Error = redact.Error(outcome.Err)
			log.Debug("fetch failed",
				slog.Int("index", i),
				slog.String("url", redact.URL(item.URL)),
				slog.String("error", item.Error))
		case errors.Is(batchErr, task.ErrCancellationSignaled):
			item.Error = msgFetchCancelled
		default:
			item.Error = msgFetchAbandoned
		}
	}

	// stoppedEarly is set when fail-fast abandoned the remaining fetches
	var stoppedEarly error
	if batchErr != nil {
		var partial *task.BatchPartialFailure
		switch {
		case errors.Is(batchErr, task.ErrCancellationSignaled):
			for _, i := range docIndexes {
				run.Items[i].Status = domain.ItemStatusSkipped
				run.Items[i].Error = msgAnalysisCancelled
			}
			log.Warn("fetch batch cancelled", slog.String("error", redact.Error(batchErr)))
			return domain.RunStatusFailed, redact.Error(batchErr)
		case errors.As(batchErr, &partial):
			log.Warn("some fetches failed",
				slog.Int("failed", len(partial.Failures)),
				slog.Int("succeeded", partial.Succeeded))
		default:
			stoppedEarly = batchErr
			log.Warn("fetch batch ended early",
				slog.Int("fetched", len(docs)),
				slog.String("error", redact.Error(batchErr)))
		}
	}

	// Documents fetched before a fail-fast stop are still analyzed
	if len(docs) > 0 {
		s.analyzeDocuments(ctx, log, run, docs, docIndexes)
	}

	status, summary := summarize(run, batchErr)
	if status == domain.RunStatusPartial && stoppedEarly != nil {
		summary += ": " + redact.Error(stoppedEarly)
	}
	return status, summary
}

// analyzeDocuments runs the analysis stage and records each document's result
// on the item it was fetched for.
func (s *Service) analyzeDocuments(
	ctx context.Context,
	log *slog.Logger,
	run *domain.Run,
	docs []domain.Document,
	docIndexes []int,
) {
	var opts []task.StageOption
	if run.FailFast {
		opts = append(opts, task.WithFailFast())
	}

	analyses, err := task.RunStage(ctx, docs, s.analyze, run.MaxWorkers, opts...)

	var stageErr *task.StageError
	if err != nil && !errors.As(err, &stageErr) {
		// Only an invalid worker count gets here, which Run validation rules out
		for _, i := range docIndexes {
			run.Items[i].Status = domain.ItemStatusAnalysisFailed
			run.Items[i].Error = redact.Error(err)
		}
		return
	}

	for j, i := range docIndexes {
		a := analyses[j]
		run.Items[i].Status = domain.ItemStatusAnalyzed
		run.Items[i].Analysis = &a
	}
	if stageErr == nil {
		return
	}

	for _, failure := range stageErr.Failures {
		item := &run.Items[docIndexes[failure.Index]]
		item.Status = domain.ItemStatusAnalysisFailed
		item.Analysis = nil
		item.Error = redact.Error(failure.Err)
	}
	skippedMsg := msgNotAnalyzed
	if stageErr.Cause != nil {
		skippedMsg = msgAnalysisCancelled
	}
	for _, j := range stageErr.Skipped {
		item := &run.Items[docIndexes[j]]
		item.Status = domain.ItemStatusSkipped
		item.Analysis = nil
		item.Error = skippedMsg
	}
	log.Warn("analysis stage reported failures",
		slog.Int("failed", len(stageErr.Failures)),
		slog.Int("skipped", len(stageErr.Skipped)))
}

// summarize derives the final run status from its items.
func summarize(run *domain.Run, batchErr error) (domain.RunStatus, string) {
	analyzed := run.CountItems()[domain.ItemStatusAnalyzed]
	total := len(run.Items)

	switch {
	case analyzed == total:
		return domain.RunStatusCompleted, ""
	case analyzed == 0:
		if batchErr != nil {
			return domain.RunStatusFailed, redact.Error(batchErr)
		}
		return domain.RunStatusFailed, fmt.Sprintf("none of %d urls were analyzed", total)
	default:
		return domain.RunStatusPartial, fmt.Sprintf("%d of %d urls were not analyzed", total-analyzed, total)
	}
}
