// Package dedupe coalesces recalculation triggers for the same configuration.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// DefaultMaxSize bounds how many pending configurations are tracked.
const DefaultMaxSize = 10000

// Deduper tracks configurations that already have a recalculation queued.
type Deduper interface {
	// SeenAndRecord atomically checks whether id is pending and marks it if
	// not. It returns true when id was already pending.
	SeenAndRecord(ctx context.Context, id int64) bool

	// Unrecord clears the pending mark, so the next trigger queues a new run.
	// Workers call it when they pick a task up, and callers call it when an
	// enqueue fails after marking.
	Unrecord(ctx context.Context, id int64)

	Size() int64
}

// inMemoryDeduper keeps pending ids in insertion order. When bounded and
// full, the oldest mark is dropped; the worst case is one extra run for
// that configuration.
type inMemoryDeduper struct {
	mu      sync.Mutex
	pending map[int64]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a pending set. A non-positive max size
// disables eviction.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		pending: make(map[int64]*list.Element),
		order:   list.New(),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.pending) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.pending, d.order.Remove(oldest).(int64))
		}
	}
	d.pending[id] = d.order.PushBack(id)
	metrics.UpdatePendingTriggers(int64(len(d.pending)))
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.pending[id]; ok {
		d.order.Remove(e)
		delete(d.pending, id)
		metrics.UpdatePendingTriggers(int64(len(d.pending)))
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.pending))
}
