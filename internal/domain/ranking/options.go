package ranking

import (
	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/domain/penalty"
	"github.com/ssherman/the-greatest-sub000/internal/domain/scoring"
	"github.com/ssherman/the-greatest-sub000/internal/domain/weight"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// Option applies a configuration option to the Recalculator.
type Option func(*Recalculator)

// WithResolver sets the penalty resolver.
func WithResolver(res *penalty.Resolver) Option {
	return func(r *Recalculator) {
		if res != nil {
			r.resolver = res
		}
	}
}

// WithCalculator sets the list weight calculator.
func WithCalculator(c *weight.Calculator) Option {
	return func(r *Recalculator) {
		if c != nil {
			r.calc = c
		}
	}
}

// WithAggregator sets the item score aggregator.
func WithAggregator(a *scoring.Aggregator) Option {
	return func(r *Recalculator) {
		if a != nil {
			r.agg = a
		}
	}
}

// WithLocker serializes recalculations of a configuration across workers
// or processes in addition to the store's own transaction lock.
func WithLocker(l lock.Locker) Option {
	return func(r *Recalculator) {
		r.locker = l
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Recalculator) {
		if l != nil {
			r.log = l
		}
	}
}
