package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aimd54/retail-gamification/pkg/logger"
)

const keyPrefix = "gamification:lock:"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica of the service. Each lock is a key set with
// NX and a TTL; the TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
	log     *logger.Logger
}

// NewRedisLocker creates a RedisLocker. ttl must exceed the longest critical section.
func NewRedisLocker(client redis.UniversalClient, ttl, timeout time.Duration, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
		retry:   25 * time.Millisecond,
		log:     log,
	}
}

// Lock acquires the lock for key, polling until it is free or the timeout expires.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func() error, error) {
	lockCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	redisKey := keyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(lockCtx, redisKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() error { return r.release(redisKey, token) }, nil
		}

		select {
		case <-ticker.C:
		case <-lockCtx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, lockCtx.Err())
		}
	}
}

func (r *RedisLocker) release(redisKey, token string) error {
	// Release must run even if the caller's context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deleted, err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", redisKey, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, redisKey)
	}
	return nil
}

// WithLock implements Locker.
func (r *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := r.Lock(ctx, key)
	if err != nil {
		return err
	}

	fnErr := fn()
	if err := unlock(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("Lock release failed")
	}
	return fnErr
}
