package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/fanout/internal/domain"
	"github.com/phrazzld/fanout/internal/store"
)

// Dispatcher errors
var (
	// ErrQueueFull is returned by Submit when the dispatch queue has no room.
	ErrQueueFull = errors.New("dispatch queue is full, try again later")

	// ErrDispatcherStopped is returned by Submit after Stop was called.
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
)

// Executor executes a single run to completion.
type Executor interface {
	Execute(ctx context.Context, run *domain.Run) error
}

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	// WorkerCount determines how many runs execute at the same time
	WorkerCount int

	// QueueSize determines the buffer size of the in-memory run queue
	QueueSize int
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount: 2,
		QueueSize:   64,
	}
}

// Dispatcher executes submitted runs on a fixed set of background workers.
// It keeps no state of its own beyond the queue; a run that cannot be queued
// is reported to the caller and never retried.
type Dispatcher struct {
	executor Executor
	queue    chan *domain.Run
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	config   DispatcherConfig
	metrics  *Metrics
	logger   *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher creates a new Dispatcher. metrics may be nil.
func NewDispatcher(
	executor Executor,
	config DispatcherConfig,
	metrics *Metrics,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if config.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", config.WorkerCount)
	}
	if config.QueueSize < 1 {
		return nil, fmt.Errorf("queue size must be at least 1, got %d", config.QueueSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		executor: executor,
		queue:    make(chan *domain.Run, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		config:   config,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "dispatcher")),
	}, nil
}

// Start launches the worker goroutines. Calling Start more than once has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("dispatcher started",
		slog.Int("worker_count", d.config.WorkerCount),
		slog.Int("queue_size", d.config.QueueSize))
}

// Submit queues run for execution without blocking.
func (d *Dispatcher) Submit(run *domain.Run) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- run:
		d.metrics.setQueueSize(len(d.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Recover queues every run the store reports as unfinished, oldest first.
// Runs that no longer fit in the queue are logged and left for the next start.
func (d *Dispatcher) Recover(ctx context.Context, runs store.RunStore) (int, error) {
	unfinished, err := runs.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unfinished runs: %w", err)
	}

	queued := 0
	for _, run := range unfinished {
		if err := d.Submit(run); err != nil {
			d.logger.Error("failed to requeue unfinished run",
				slog.String("run_id", run.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		queued++
	}

	d.logger.Info("recovered unfinished runs",
		slog.Int("found", len(unfinished)),
		slog.Int("queued", queued))
	return queued, nil
}

// Stop stops accepting runs and waits for queued and in-flight runs to finish.
// If ctx ends first, the remaining runs are cancelled, Stop waits for them to
// record their final state, and the context error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop deadline reached, cancelling remaining runs")
		d.cancel()
		<-done
		return fmt.Errorf("dispatcher did not drain in time: %w", ctx.Err())
	}
}

// worker executes runs from the queue until it is closed
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	d.logger.Debug("starting worker", slog.Int("worker_id", id))

	for run := range d.queue {
		d.metrics.setQueueSize(len(d.queue))
		d.process(run, id)
	}

	d.logger.Debug("run queue closed, stopping worker", slog.Int("worker_id", id))
}

// process handles execution of a single run
func (d *Dispatcher) process(run *domain.Run, workerID int) {
	log := d.logger.With(
		slog.String("run_id", run.ID.String()),
		slog.Int("worker_id", workerID),
	)

	if err := d.executor.Execute(d.ctx, run); err != nil {
		log.Error("run execution failed", slog.String("error", err.Error()))
		return
	}
	log.Debug("run executed", slog.String("status", string(run.Status)))
}
