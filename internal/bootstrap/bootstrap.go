// Package bootstrap opens the backends named by a Config and maps the
// Config onto service options. The HTTP server and rankctl share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ssherman/the-greatest-sub000/internal/adapters/lock"
	"github.com/ssherman/the-greatest-sub000/internal/adapters/repository"
	service "github.com/ssherman/the-greatest-sub000/internal/app"
	"github.com/ssherman/the-greatest-sub000/internal/config"
	"github.com/ssherman/the-greatest-sub000/pkg/logger"
)

// Resources holds the opened store and locker. Close releases both.
type Resources struct {
	Store  repository.Store
	Locker lock.Locker

	redis *redis.Client
}

// Open connects the configured store and lock backends. Migrations run when
// cfg.AutoMigrate is set and the store is SQL backed.
func Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	res := &Resources{}

	switch cfg.StoreBackend {
	case config.StoreMemory:
		res.Store = repository.NewMemoryStore()
	default:
		d, err := repository.ParseDialect(cfg.StoreBackend)
		if err != nil {
			return nil, err
		}
		var opts []repository.Option
		if cfg.AutoMigrate {
			opts = append(opts, repository.WithMigrations())
		}
		store, err := repository.OpenSQL(ctx, d, cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
		}
		res.Store = store
	}

	switch cfg.LockBackend {
	case config.LockRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = res.Store.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		res.redis = client
		res.Locker = lock.NewRedisLocker(client, lock.WithTTL(cfg.LockTTL()))
	default:
		res.Locker = lock.NewLocalLocker()
	}

	logger.Get().Info(ctx, "backends ready",
		logger.String("store", cfg.StoreBackend),
		logger.String("lock", cfg.LockBackend),
	)
	return res, nil
}

// SQL returns the SQL store, or nil for the memory backend.
func (r *Resources) SQL() *repository.SQLStore {
	s, _ := r.Store.(*repository.SQLStore)
	return s
}

// Close releases the store and the redis client.
func (r *Resources) Close() error {
	var errs []error
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	return errors.Join(errs...)
}

// ServiceOptions maps cfg and the opened resources onto service options.
func ServiceOptions(cfg *config.Config, res *Resources) []service.Option {
	return []service.Option{
		service.WithLogger(logger.Named("service")),
		service.WithStore(res.Store),
		service.WithLocker(res.Locker),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithPendingSize(cfg.PendingSize),
		service.WithBulkParallelism(cfg.BulkParallelism),
		service.WithVoterCountThreshold(cfg.VoterCountThreshold),
		service.WithMaxRankedItemsLimit(cfg.MaxRankedItemsLimit),
	}
}

// InitLogging initializes the global logger from cfg. An unknown level
// falls back to info and is reported.
func InitLogging(ctx context.Context, cfg *config.Config, opts ...logger.Option) error {
	if err := logger.Init(append([]logger.Option{logger.WithFormat(cfg.LogFormat)}, opts...)...); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}
