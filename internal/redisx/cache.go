package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the narrow surface HTTP handlers use for idempotency records
// and status caching. Both operations are best-effort: a cache failure
// reads as a miss and never fails the request.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

type RedisCache struct{ R *redis.Client }

func (c RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.R.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (c RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	_ = c.R.Set(ctx, key, value, ttl).Err()
}
