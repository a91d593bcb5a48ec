// Package worker runs queued recalculation tasks.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/mq/queue"
	"github.com/ssherman/the-greatest-sub000/internal/domain/ranking"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Recalculator recomputes one configuration.
type Recalculator interface {
	Recalculate(ctx context.Context, configurationID int64) (ranking.Summary, error)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Pending is the coalescing set a worker clears before running a task, so
// triggers that arrive during the run queue a fresh one.
type Pending interface {
	Unrecord(ctx context.Context, id int64)
}

// Tracker observes task outcomes.
type Tracker interface {
	Started()
	Finished(err error)
}

// Worker processes tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the task in flight, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for an in-process queue.
type InMemoryWorker struct {
	queue   Queue
	recalc  Recalculator
	pending Pending
	tracker Tracker
	name    string

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, recalc Recalculator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		recalc:   recalc,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.process(ctx, task); err != nil {
				w.logger.Error(ctx, "recalculation task failed",
					logger.String("task_id", task.ID),
					logger.Int64("configuration_id", task.ConfigurationID),
					logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })
	if err := w.Wait(ctx); err != nil {
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", err)
	}
	return nil
}

// Wait blocks until Run returns or ctx is done. Run returns on its own once
// the queue is closed and drained.
func (w *InMemoryWorker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process runs a single task. Failures leave the previous ranking in place
// and are not retried here.
func (w *InMemoryWorker) process(ctx context.Context, task queue.Task) (err error) {
	start := time.Now()
	if w.pending != nil {
		w.pending.Unrecord(ctx, task.ConfigurationID)
	}
	if w.tracker != nil {
		w.tracker.Started()
		defer func() { w.tracker.Finished(err) }()
	}
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	sum, err := w.recalc.Recalculate(ctx, task.ConfigurationID)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "recalculation_error")
		return fmt.Errorf("recalculate configuration %d: %w", task.ConfigurationID, err)
	}
	w.logger.Debug(ctx, "recalculation task done",
		logger.String("task_id", task.ID),
		logger.Int64("configuration_id", task.ConfigurationID),
		logger.Int("items_ranked", sum.ItemsRanked),
		logger.Duration("queued_for", start.Sub(task.EnqueuedAt)))
	return nil
}

// PoolStats is a point-in-time view of a Pool.
type PoolStats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers sharing q. A count below 1
// uses one worker per CPU.
func NewPool(workerCount int, q Queue, recalc Recalculator, pending Pending) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, recalc,
			WithName("worker-"+strconv.Itoa(i)),
			WithPending(pending),
			WithTracker(p),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Started implements Tracker.
func (p *Pool) Started() {
	metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
}

// Finished implements Tracker.
func (p *Pool) Finished(err error) {
	metrics.UpdateWorkerActiveCount(int(p.active.Add(-1)))
	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stats returns current pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   len(p.workers),
		Active:    p.active.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown closes the queue and waits for the workers to drain the tasks
// already queued. Workers still busy when ctx or the shutdown timeout
// expires are stopped after the task they are running.
func (p *Pool) Shutdown(ctx context.Context) error {
	drain := false
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		} else {
			drain = true
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if drain && w.Wait(shutdownCtx) == nil {
			continue
		}
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	return nil
}
