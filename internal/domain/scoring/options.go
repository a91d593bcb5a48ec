package scoring

import "github.com/ssherman/the-greatest-sub000/pkg/logger"

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithDecay replaces the position decay curve.
func WithDecay(fn DecayFunc) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.decay = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.log = l
		}
	}
}
