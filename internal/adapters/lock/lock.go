// Package lock provides per-key mutual exclusion for recalculations.
package lock

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

// Sentinel kinds for lock errors.
var (
	ErrHeld     = errors.New("lock held by another owner")
	ErrNotOwner = errors.New("lock no longer owned")
)

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func(ctx context.Context) error

// Locker hands out exclusive locks keyed by string.
type Locker interface {
	// Lock blocks until key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
	// TryLock returns ErrHeld instead of waiting.
	TryLock(ctx context.Context, key string) (Unlock, error)
}

// ConfigurationKey is the lock key guarding one configuration's recalculation.
func ConfigurationKey(configurationID int64) string {
	return "ranking:configuration:" + strconv.FormatInt(configurationID, 10)
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker serializes owners within one process.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]*localEntry)}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	return l.acquire(ctx, key, true)
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(ctx context.Context, key string) (Unlock, error) {
	return l.acquire(ctx, key, false)
}

func (l *LocalLocker) acquire(ctx context.Context, key string, wait bool) (Unlock, error) {
	start := time.Now()
	l.mu.Lock()
	e := l.keys[key]
	if e == nil {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if wait {
		select {
		case e.ch <- struct{}{}:
		case <-ctx.Done():
			l.release(key, e)
			metrics.RecordLockAcquire("local", "cancelled", time.Since(start).Seconds())
			return nil, ctx.Err()
		}
	} else {
		select {
		case e.ch <- struct{}{}:
		default:
			l.release(key, e)
			metrics.RecordLockAcquire("local", "held", time.Since(start).Seconds())
			return nil, ErrHeld
		}
	}
	metrics.RecordLockAcquire("local", "acquired", time.Since(start).Seconds())

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
		return nil
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
