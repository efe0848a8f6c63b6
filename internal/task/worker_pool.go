package task

import (
	"context"
	"sync"
)

// WorkerPool manages a fixed number of worker goroutines that take input
// indices from a queue and hand them to a handler. A pool serves one stage
// call and is discarded afterwards.
type WorkerPool struct {
	// queue provides read access to the indices to be processed
	queue IndexQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx ends dispatching; work already handed to a worker still finishes
	ctx context.Context

	// cancel is the function to call to stop dispatching
	cancel context.CancelFunc

	// handler processes one index on the worker identified by workerID
	handler func(workerID, index int)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// Must be at least 1.
	WorkerCount int
}

// NewWorkerPool creates a worker pool that stops dispatching when ctx ends
func NewWorkerPool(
	ctx context.Context,
	queue IndexQueueReader,
	config WorkerPoolConfig,
	handler func(workerID, index int),
) (*WorkerPool, error) {
	if config.WorkerCount < 1 {
		return nil, ErrInvalidWorkerCount
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		queue:       queue,
		workerCount: config.WorkerCount,
		ctx:         poolCtx,
		cancel:      cancel,
		handler:     handler,
	}, nil
}

// Start launches the worker goroutines
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// StopDispatch prevents workers from taking further indices without waiting
// for them. It is safe to call from a handler.
func (p *WorkerPool) StopDispatch() {
	p.cancel()
}

// Wait blocks until every worker has exited, either because the queue is
// drained or because dispatching was stopped
func (p *WorkerPool) Wait() {
	p.wg.Wait()
	p.cancel()
}

// worker takes indices until the queue is closed and empty or dispatching stops
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	indices := p.queue.GetChannel()
	for {
		select {
		case <-p.ctx.Done():
			return

		case index, ok := <-indices:
			if !ok {
				return
			}

			// select picks randomly among ready cases; do not start new work
			// once dispatching has been stopped
			if p.ctx.Err() != nil {
				return
			}

			p.handler(id, index)
		}
	}
}
