package weight

import "time"

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithBaseWeight replaces the base weight function.
func WithBaseWeight(fn BaseWeightFunc) Option {
	return func(c *Calculator) {
		if fn != nil {
			c.base = fn
		}
	}
}

// WithDecay replaces the list-dates decay curve.
func WithDecay(fn DecayFunc) Option {
	return func(c *Calculator) {
		if fn != nil {
			c.decay = fn
		}
	}
}

// WithClock sets the time source used for list ages and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}
