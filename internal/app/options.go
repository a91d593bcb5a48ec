package service

import (
	"runtime"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// Default service configuration.
const (
	defaultQueueSize       = 1024
	defaultPendingSize     = 10000
	defaultMaxRankedItems  = 1000
	defaultBulkParallelism = 4
)

var defaultWorkerCount = runtime.NumCPU()

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. Without it Start uses a MemoryStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLocker serializes recalculations of a configuration across processes.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued recalculations.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPendingSize bounds the coalescing set.
func WithPendingSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pendingSize = size
		}
	}
}

// WithBulkParallelism caps concurrent runs in RecalculateAllNow.
func WithBulkParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bulkParallelism = n
		}
	}
}

// WithVoterCountThreshold sets where the number_of_voters penalty stops.
func WithVoterCountThreshold(n int) Option {
	return func(s *Service) {
		if n > 1 {
			s.voterThreshold = n
		}
	}
}

// WithMaxRankedItemsLimit caps the limit accepted by RankedItems.
func WithMaxRankedItemsLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRankedItems = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
