package cache

import (
	"context"
	"fmt"

	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewIdempotencyStore picks the store for cfg. An empty Redis host selects
// the in-memory store. When Redis is configured but unreachable the
// in-memory store is used only if allowFallback is set.
func NewIdempotencyStore(ctx context.Context, cfg config.RedisConfig, allowFallback bool, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		logger.Info("Using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(0), nil
	}

	store, err := NewRedisIdempotencyStore(ctx, cfg)
	if err == nil {
		logger.Info("Using Redis idempotency store", zap.String("addr", cfg.Addr()))
		return store, nil
	}
	if !allowFallback {
		return nil, fmt.Errorf("redis required for idempotency but unavailable: %w", err)
	}
	logger.Warn("Redis unavailable, falling back to in-memory idempotency store; "+
		"duplicate submissions across instances will not be detected",
		zap.Error(err))
	return NewInMemoryIdempotencyStore(0), nil
}
