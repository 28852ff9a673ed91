package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCommander interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisLockerConfig configures the Redis-backed delivery locks.
type RedisLockerConfig struct {
	Namespace string
}

// RedisLocker holds in-flight delivery locks in Redis so replicas share them.
type RedisLocker struct {
	client    redisCommander
	closeFn   func() error
	namespace string

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client redis.UniversalClient, cfg RedisLockerConfig) *RedisLocker {
	closeFn := func() error { return nil }
	if client != nil {
		closeFn = client.Close
	}
	return newRedisLockerFromCommander(client, closeFn, cfg)
}

func newRedisLockerFromCommander(client redisCommander, closeFn func() error, cfg RedisLockerConfig) *RedisLocker {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "commit-ingest"
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}

	return &RedisLocker{
		client:    client,
		closeFn:   closeFn,
		namespace: namespace,
		Now:       time.Now,
	}
}

// Close closes the underlying Redis client.
func (l *RedisLocker) Close() error {
	if l == nil || l.closeFn == nil {
		return nil
	}
	return l.closeFn()
}

// TryLock acquires a lock until ttl elapses or Unlock is called.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("redis locker is not initialized")
	}
	if ttl <= 0 {
		return true, nil
	}

	acquired, err := l.client.SetNX(ctx, l.lockKey(key), l.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	return acquired, nil
}

// Unlock releases a lock.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("redis locker is not initialized")
	}
	if err := l.client.Del(ctx, l.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("release lock %q: %w", key, err)
	}
	return nil
}

// Ping reports Redis availability.
func (l *RedisLocker) Ping(ctx context.Context) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("redis locker is not initialized")
	}
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) lockKey(key string) string {
	return l.namespace + ":lock:delivery:" + key
}
