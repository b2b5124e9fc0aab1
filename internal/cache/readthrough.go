package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader computes a value on a cache miss.
type Loader[T any] func(ctx context.Context) (T, error)

// ReadThrough wraps a Cache with miss-then-compute loading. Concurrent misses
// for the same key share a single load.
type ReadThrough struct {
	cache *Cache
	group singleflight.Group
}

// NewReadThrough wraps c.
func NewReadThrough(c *Cache) *ReadThrough {
	return &ReadThrough{cache: c}
}

// Cache returns the underlying cache.
func (r *ReadThrough) Cache() *Cache { return r.cache }

// Invalidate forwards to the underlying cache.
func (r *ReadThrough) Invalidate(families ...string) { r.cache.Invalidate(families...) }

// GetOrLoad returns the cached value for key or computes it with load. The
// computed value is stored only if no invalidation of the key's family
// happened while it was loading. A cached value of the wrong type is treated
// as a miss; cache trouble never fails the read, only load errors do.
//
// The shared load runs detached from any one caller's cancellation. Each
// caller stops waiting when its own ctx is done.
func GetOrLoad[T any](ctx context.Context, r *ReadThrough, key string, ttl time.Duration, load Loader[T]) (T, error) {
	var zero T
	if v, ok := r.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
		r.cache.Delete(key)
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		gen := r.cache.Generation(Family(key))
		val, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		r.cache.SetIfGeneration(key, val, ttl, gen)
		return val, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return zero, res.Err
	}
	typed, ok := res.Val.(T)
	if !ok {
		return zero, fmt.Errorf("cache: loader for %q returned %T", key, res.Val)
	}
	return typed, nil
}
