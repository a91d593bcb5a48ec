package penalty

import "github.com/ssherman/the-greatest-sub000/pkg/logger"

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithVoterCountThreshold sets the voter count below which the
// number_of_voters penalty starts to apply.
func WithVoterCountThreshold(threshold int) Option {
	return func(r *Resolver) {
		if threshold > 1 {
			r.voterThreshold = threshold
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}
