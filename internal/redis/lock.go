package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduling"
)

var ErrLockNotAcquired = fmt.Errorf("%w: lock not acquired", scheduling.ErrBusy)

type LockOptions struct {
	TTL        time.Duration // how long a held key lives if the holder dies
	Retries    uint64        // extra SETNX attempts after the first
	RetryBase  time.Duration // first backoff delay, doubled per attempt
	MaxBackoff time.Duration
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		TTL:        5 * time.Second,
		Retries:    20,
		RetryBase:  10 * time.Millisecond,
		MaxBackoff: 250 * time.Millisecond,
	}
}

type redisLocker struct {
	client *redis.Client
	opts   LockOptions
	log    *zap.Logger
}

// NewRedisLocker returns a scheduling.Locker that holds one Redis key per lock
// name. Every process sharing the store must use the same Redis.
func NewRedisLocker(client *redis.Client, opts LockOptions, log *zap.Logger) scheduling.Locker {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultLockOptions()
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = def.RetryBase
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	return &redisLocker{client: client, opts: opts, log: log.Named("redis_lock")}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		if err := l.release(context.WithoutCancel(ctx), key, token); err != nil {
			// The key stays held until its TTL expires.
			l.log.Warn("release lock failed", zap.String("key", key), zap.Duration("ttl", l.opts.TTL), zap.Error(err))
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	backoff := retry.NewExponential(l.opts.RetryBase)
	backoff = retry.WithCappedDuration(l.opts.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(l.opts.Retries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if !ok {
			return retry.RetryableError(ErrLockNotAcquired)
		}
		return nil
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrLockNotAcquired) {
		return fmt.Errorf("lock %s: %w: %w", key, scheduling.ErrBusy, ctx.Err())
	}
	if errors.Is(err, ErrLockNotAcquired) {
		return fmt.Errorf("lock %s: %w", key, ErrLockNotAcquired)
	}
	return err
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
