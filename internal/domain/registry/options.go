package registry

import "github.com/ssherman/the-greatest-sub000/pkg/logger"

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}
