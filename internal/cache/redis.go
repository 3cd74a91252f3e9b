package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is the out-of-process cache backend, for deployments that run more
// than one signing process behind a shared cache. A miss or a backend error
// is treated identically by callers: fall back to the chain-RPC oracle,
// never fail the request because the cache is unavailable.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(addr string, logger *zap.Logger) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	out, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("cache get failed, falling back", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return out, true
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("cache put failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) Invalidate(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}
