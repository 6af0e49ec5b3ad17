package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is an in-process TTL cache with single-flight recompute: concurrent
// misses for the same key share one loader call instead of stampeding the
// backing source. Loader errors are returned to every waiter and never cached.
type Cache[V any] struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry[V]
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// New builds a cache whose entries live for ttl. A non-positive ttl disables
// caching and turns every lookup into a loader call.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// GetOrCompute returns the cached value for key, running loader when the
// entry is missing or expired.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, loader func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.lookup(key); ok {
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value)
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate drops the entry for key, if present.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.entries[key]
	if !ok || c.now().After(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

func (c *Cache[V]) store(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
