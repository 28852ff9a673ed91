package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/commit-ingest/internal/config"
	"github.com/cam3ron2/commit-ingest/internal/store"
	"github.com/cam3ron2/commit-ingest/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type recordStore interface {
	webhook.Store
	Ping(ctx context.Context) error
}

type lockBackend interface {
	deliveryLocker
	Ping(ctx context.Context) error
}

type closeFunc func(ctx context.Context) error

func newRecordStore(ctx context.Context, cfg *config.Config) (recordStore, closeFunc, error) {
	if cfg == nil || !strings.EqualFold(strings.TrimSpace(cfg.Store.Backend), "mongo") {
		return store.NewMemoryStore(), nil, nil
	}

	mongoStore, err := store.NewMongoStore(ctx, store.MongoConfig{
		URI:      cfg.Store.MongoURI,
		Database: cfg.Store.MongoDatabase,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize mongo store: %w", err)
	}
	return mongoStore, mongoStore.Close, nil
}

// newDeliveryLocker returns the lock backend. Memory locks reuse the memory
// record store when there is one.
func newDeliveryLocker(cfg *config.Config, records recordStore, logger *zap.Logger) (lockBackend, closeFunc, error) {
	if cfg != nil && strings.EqualFold(strings.TrimSpace(cfg.Store.LockBackend), "redis") {
		locker, err := newRedisLockerFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}
		return locker, func(context.Context) error { return locker.Close() }, nil
	}

	if memory, ok := records.(*store.MemoryStore); ok {
		return memory, nil, nil
	}
	logger.Debug("using process-local delivery locks alongside a shared record store")
	return store.NewMemoryStore(), nil, nil
}

func newRedisLockerFromConfig(cfg *config.Config) (*store.RedisLocker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var redisClient redis.UniversalClient
	if strings.EqualFold(cfg.Store.RedisMode, "sentinel") {
		redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.Store.RedisMasterSet,
			SentinelAddrs: cfg.Store.RedisSentinelAddrs,
			Password:      cfg.Store.RedisPassword,
			DB:            cfg.Store.RedisDB,
		})
	} else {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return store.NewRedisLocker(redisClient, store.RedisLockerConfig{
		Namespace: cfg.Store.Namespace,
	}), nil
}
