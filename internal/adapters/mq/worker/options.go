package worker

import (
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithPending clears a task's coalescing mark when the worker picks it up.
func WithPending(p Pending) Option {
	return func(w *InMemoryWorker) {
		w.pending = p
	}
}

// WithTracker reports task outcomes, typically to the owning Pool.
func WithTracker(t Tracker) Option {
	return func(w *InMemoryWorker) {
		w.tracker = t
	}
}
