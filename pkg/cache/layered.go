package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// LayeredCache fronts Redis with a short-lived in-process copy. Writes go
// to Redis first; the local copy never outlives L1TTL, so writes from other
// instances show up within that window.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
	fill  singleflight.Group
}

func NewLayeredCache(l2 *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := LayeredConfig{L1Size: 1000, L1TTL: time.Minute}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(WithMemoryMaxSize(cfg.L1Size)),
		l2:    l2,
		l1TTL: cfg.L1TTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	local := lc.l1TTL
	if expiration > 0 && expiration < local {
		local = expiration
	}
	_ = lc.l1.Set(ctx, key, value, local)
	return nil
}

// Get serves from L1 when it can. Concurrent L1 misses on one key share a
// single Redis read.
func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if lc.l1.Get(ctx, key, dest) == nil {
		return nil
	}
	v, err, _ := lc.fill.Do(key, func() (interface{}, error) {
		var raw []byte
		if err := lc.l2.Get(ctx, key, &raw); err != nil {
			return nil, err
		}
		_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
		return raw, nil
	})
	if err != nil {
		return err
	}
	return decode(v.([]byte), dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.l1.DeleteByPattern(ctx, pattern)
	return lc.l2.DeleteByPattern(ctx, pattern)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.l2.Exists(ctx, keys...)
}

// Locks always go to Redis so every instance sees them.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.l2.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.l2.Unlock(ctx, key)
}

// Close stops the in-process layer. The Redis client stays open for the
// other components sharing it.
func (lc *LayeredCache) Close() error {
	return lc.l1.Close()
}
