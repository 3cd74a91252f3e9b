package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the value for key on a cache miss.
type Loader func(ctx context.Context, key string) ([]byte, error)

// GetOrLoad returns the cached value for key, or calls load on a miss and
// populates the cache with the result. Concurrent misses for the same key
// are collapsed into a single in-flight load via singleflight, so a burst of
// requests referencing the same lookup table doesn't fan out into N
// identical chain-RPC calls.
type StampedeGuard struct {
	cache Cache
	group singleflight.Group
}

func NewStampedeGuard(c Cache) *StampedeGuard {
	return &StampedeGuard{cache: c}
}

func (g *StampedeGuard) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if v, ok := g.cache.Get(ctx, key); ok {
		return v, nil
	}

	v, err, _ := g.group.Do(key, func() (interface{}, error) {
		if v, ok := g.cache.Get(ctx, key); ok {
			return v, nil
		}
		v, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		g.cache.Put(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
