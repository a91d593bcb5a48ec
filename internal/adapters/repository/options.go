package repository

import "time"

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

type options struct {
	now             func() time.Time
	maxOpenConns    int
	connMaxLifetime time.Duration
	migrate         bool
}

func defaultOptions() options {
	return options{
		now:             func() time.Time { return time.Now().UTC() },
		maxOpenConns:    defaultMaxOpenConns,
		connMaxLifetime: defaultConnMaxLifetime,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock overrides the timestamp source used for created/updated columns.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMaxOpenConns bounds the SQL connection pool. SQLite always uses one connection.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime sets how long a pooled SQL connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connMaxLifetime = d
		}
	}
}

// WithMigrations makes OpenSQL apply pending schema migrations before returning.
func WithMigrations() Option {
	return func(o *options) {
		o.migrate = true
	}
}
