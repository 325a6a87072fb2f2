package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultRetryWait = 50 * time.Millisecond
	keyPrefix        = "composer:lock:"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks as expiring Redis keys so several API instances
// serialize on the same execution.
type RedisLocker struct {
	client    *redis.Client
	ttl       time.Duration
	retryWait time.Duration
}

// NewRedisLocker connects to the Redis server at url.
func NewRedisLocker(ctx context.Context, url string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisLocker{client: client, ttl: defaultLockTTL, retryWait: defaultRetryWait}, nil
}

// WithTTL sets how long a lock survives a crashed holder.
func (l *RedisLocker) WithTTL(ttl time.Duration) *RedisLocker {
	if ttl > 0 {
		l.ttl = ttl
	}

	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
		case <-time.After(l.retryWait):
		}
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}

		return nil
	}, nil
}

// Close shuts down the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
