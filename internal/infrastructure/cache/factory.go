package cache

import (
	"context"
	"fmt"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Idempotency store kinds accepted in configuration
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	eventConfig           config.EventConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// the in-memory store. Default is false.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(eventCfg config.EventConfig, redisCfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		eventConfig: eventCfg,
		redisConfig: redisCfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the store selected by event.idempotency_store
func (f *IdempotencyStoreFactory) Create(ctx context.Context) (shared.IdempotencyStore, error) {
	switch f.eventConfig.IdempotencyStore {
	case "", StoreMemory:
		f.logger.Info("using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(0), nil
	case StoreRedis:
		store, err := NewRedisIdempotencyStore(ctx, f.redisConfig, f.eventConfig.IdempotencyKeyPrefix)
		if err == nil {
			f.logger.Info("using redis idempotency store", zap.String("addr", f.redisConfig.Addr()))
			return store, nil
		}
		if !f.allowInMemoryFallback {
			return nil, err
		}
		f.logger.Warn("redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
		return NewInMemoryIdempotencyStore(0), nil
	default:
		return nil, fmt.Errorf("unknown idempotency store %q", f.eventConfig.IdempotencyStore)
	}
}
