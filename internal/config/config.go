// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Store and lock backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects memory, sqlite or postgres.
	StoreBackend string `koanf:"store_backend"`
	// DatabaseURL is the DSN for the sqlite and postgres backends.
	DatabaseURL string `koanf:"database_url"`
	// AutoMigrate applies pending migrations when the store opens.
	AutoMigrate bool `koanf:"auto_migrate"`

	// QueueSize bounds the in-memory recalculation queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recalculation workers.
	WorkerCount int `koanf:"worker_count"`
	// PendingSize bounds the set of configurations with a queued run.
	PendingSize int `koanf:"pending_size"`
	// BulkParallelism caps concurrent runs of a synchronous bulk recalculation.
	BulkParallelism int `koanf:"bulk_parallelism"`

	LockBackend string `koanf:"lock_backend"`
	RedisAddr   string `koanf:"redis_addr"`
	LockTTLMS   int    `koanf:"lock_ttl_ms"`

	// VoterCountThreshold is the voter count at which the number_of_voters
	// penalty reaches zero.
	VoterCountThreshold int `koanf:"voter_count_threshold"`

	// MaxRankedItemsLimit caps GET ranked-items?limit.
	MaxRankedItemsLimit int `koanf:"max_ranked_items_limit"`
	// DefaultRankedItemsLimit is used when the request has no limit.
	DefaultRankedItemsLimit int `koanf:"default_ranked_items_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		StoreBackend:            StoreMemory,
		AutoMigrate:             true,
		QueueSize:               1024,
		WorkerCount:             runtime.NumCPU(),
		PendingSize:             10_000,
		BulkParallelism:         4,
		LockBackend:             LockLocal,
		RedisAddr:               "localhost:6379",
		LockTTLMS:               60_000,
		VoterCountThreshold:     1000,
		MaxRankedItemsLimit:     1000,
		DefaultRankedItemsLimit: 100,
	}
}

// LockTTL returns LockTTLMS as a duration.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMS) * time.Millisecond
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case !slices.Contains([]string{StoreMemory, StoreSQLite, StorePostgres}, c.StoreBackend):
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend != StoreMemory && c.DatabaseURL == "":
		return fmt.Errorf("%w: database_url is required for the %s store", ErrInvalidConfig, c.StoreBackend)
	case !slices.Contains([]string{LockLocal, LockRedis}, c.LockBackend):
		return fmt.Errorf("%w: unknown lock_backend %q", ErrInvalidConfig, c.LockBackend)
	case c.LockBackend == LockRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required for the redis lock", ErrInvalidConfig)
	case c.QueueSize < 1, c.WorkerCount < 1, c.PendingSize < 1, c.BulkParallelism < 1:
		return fmt.Errorf("%w: queue_size, worker_count, pending_size and bulk_parallelism must be positive", ErrInvalidConfig)
	case c.LockTTLMS < 1:
		return fmt.Errorf("%w: lock_ttl_ms must be positive", ErrInvalidConfig)
	case c.VoterCountThreshold < 2:
		return fmt.Errorf("%w: voter_count_threshold must be at least 2", ErrInvalidConfig)
	case c.MaxRankedItemsLimit < 1:
		return fmt.Errorf("%w: max_ranked_items_limit must be positive", ErrInvalidConfig)
	case c.DefaultRankedItemsLimit < 1 || c.DefaultRankedItemsLimit > c.MaxRankedItemsLimit:
		return fmt.Errorf("%w: default_ranked_items_limit must be between 1 and max_ranked_items_limit", ErrInvalidConfig)
	}
	return nil
}
