package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheRepository wraps the Redis interactions used by the auth flows: the
// short-lived access-token denylist and the fixed-window rate counters.
// A nil client disables both features rather than failing requests.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{client: client, logger: logger}
}

const denylistPrefix = "denylist:access:"

// Deny records an access-token jti until its remaining lifetime elapses.
// The TTL bounds the entry, so the denylist can never grow unbounded.
func (r *CacheRepository) Deny(ctx context.Context, jti string, ttl time.Duration) error {
	if r.client == nil || ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, denylistPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis deny %s: %w", jti, err)
	}
	return nil
}

// IsDenied reports whether the access-token jti was revoked at logout.
// Redis trouble fails open: the token is still signature- and expiry-checked.
func (r *CacheRepository) IsDenied(ctx context.Context, jti string) bool {
	if r.client == nil || jti == "" {
		return false
	}
	n, err := r.client.Exists(ctx, denylistPrefix+jti).Result()
	if err != nil {
		r.logger.Warn("denylist lookup failed", zap.Error(err))
		return false
	}
	return n > 0
}

// IncrWindow increments a fixed-window counter, setting the window TTL on
// first use, and returns the running count.
func (r *CacheRepository) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}
