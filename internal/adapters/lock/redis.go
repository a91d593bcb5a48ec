package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ssherman/the-greatest-sub000/pkg/metrics"
)

const (
	defaultTTL           = time.Minute
	defaultRetryInterval = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes owners across processes sharing one Redis.
// A lock expires after its TTL, so holders must finish well within it.
type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	prefix        string
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets how long an unreleased lock survives.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets the polling interval used by Lock.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.retryInterval = d
		}
	}
}

// WithKeyPrefix namespaces lock keys, e.g. per deployment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker creates a locker over client.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:        client,
		ttl:           defaultTTL,
		retryInterval: defaultRetryInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements Locker by polling SET NX until it succeeds or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		unlock, err := l.try(ctx, key)
		if err == nil {
			metrics.RecordLockAcquire("redis", "acquired", time.Since(start).Seconds())
			return unlock, nil
		}
		if !errors.Is(err, ErrHeld) {
			metrics.RecordLockAcquire("redis", "error", time.Since(start).Seconds())
			return nil, err
		}
		select {
		case <-ctx.Done():
			metrics.RecordLockAcquire("redis", "cancelled", time.Since(start).Seconds())
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	unlock, err := l.try(ctx, key)
	outcome := "acquired"
	switch {
	case errors.Is(err, ErrHeld):
		outcome = "held"
	case err != nil:
		outcome = "error"
	}
	metrics.RecordLockAcquire("redis", outcome, time.Since(start).Seconds())
	return unlock, err
}

func (l *RedisLocker) try(ctx context.Context, key string) (Unlock, error) {
	full := l.prefix + key
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", full, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var (
		once   sync.Once
		relErr error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			n, err := releaseScript.Run(ctx, l.client, []string{full}, token).Int()
			switch {
			case err != nil:
				relErr = fmt.Errorf("release %s: %w", full, err)
			case n == 0:
				relErr = fmt.Errorf("release %s: %w", full, ErrNotOwner)
			}
		})
		return relErr
	}, nil
}
