// Package cache holds process-local and Redis-backed caches plus the Redis
// pub/sub channel that keeps instance-local caches coherent.
package cache

import (
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore picks the Redis store when a client is available and
// falls back to memory otherwise. The returned close func releases in-memory
// resources and never closes the shared Redis client.
func NewIdempotencyStore(client *redis.Client, logger *zap.Logger) (shared.IdempotencyStore, func() error) {
	if client != nil {
		logger.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(client, ""), func() error { return nil }
	}

	logger.Warn("Redis disabled, using in-memory idempotency store. " +
		"Duplicate deliveries are only detected per instance.")
	store := NewInMemoryIdempotencyStore()
	return store, store.Close
}
