// Package queue carries recalculation tasks from triggers to workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Task asks a worker to recalculate one configuration. It carries only the
// id; the worker re-reads everything else when it runs.
type Task struct {
	ID              string
	ConfigurationID int64
	EnqueuedAt      time.Time
}

// NewTask creates a task with a fresh id.
func NewTask(configurationID int64) Task {
	return Task{
		ID:              uuid.NewString(),
		ConfigurationID: configurationID,
		EnqueuedAt:      time.Now(),
	}
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a task. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, t Task) bool

	// Dequeue returns a channel of tasks that is closed when the queue is
	// closed and drained, or when ctx is done.
	Dequeue(ctx context.Context) <-chan Task

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan Task, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds a task to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected("closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		q.rejected("context_cancelled")
		return false
	}

	select {
	case q.tasks <- t:
		metrics.RecordQueueEnqueue()
		q.observe()
		return true
	default:
		q.rejected("queue_full")
		return false
	}
}

// Dequeue returns a channel that receives tasks as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-q.tasks:
				if !ok {
					return
				}
				select {
				case out <- t:
					metrics.RecordQueueDequeue()
					metrics.RecordQueueProcessingLatency(float64(time.Since(t.EnqueuedAt).Milliseconds()))
					q.observe()
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of waiting tasks.
func (q *InMemoryQueue) Len(context.Context) int {
	return q.observe()
}

// Close stops accepting tasks. Tasks already queued can still be dequeued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) observe() int {
	size := len(q.tasks)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

func (q *InMemoryQueue) rejected(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}
