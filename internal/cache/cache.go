// Package cache provides a process-local read-through cache with explicit
// invalidation and a bounded TTL.
//
// Consistency rules:
//   - A load that started before an invalidation is returned to its callers
//     but never memoized.
//   - Callers arriving after an invalidation never join a load that started
//     before it (loads are coalesced per key and generation).
//   - Values are passed through a clone function on the way in and out so
//     callers cannot mutate cached state.
//
// Entries expire after the configured TTL; expired entries are reloaded on the
// next Get and swept lazily.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader produces the value for a missing key.
type Loader[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a generic TTL cache. The zero value is not usable; use New.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	clone func(V) V
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	gen     uint64

	group singleflight.Group
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClone sets the function used to copy values in and out of the cache.
func WithClone[V any](fn func(V) V) Option[V] {
	return func(c *Cache[V]) { c.clone = fn }
}

// WithClock overrides the time source.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// New returns a cache named name (used as a metrics label) whose entries live
// for ttl. A non-positive ttl disables memoization.
func New[V any](name string, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:    name,
		ttl:     ttl,
		clone:   func(v V) V { return v },
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached value for key, or calls load and memoizes its result.
// Loader errors are returned as-is and never cached.
func (c *Cache[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expires) {
			c.mu.Unlock()
			lookups.WithLabelValues(c.name, "hit").Inc()
			return c.clone(e.value), nil
		}
		delete(c.entries, key)
	}
	gen := c.gen
	c.mu.Unlock()
	lookups.WithLabelValues(c.name, "miss").Inc()

	flightKey := strconv.FormatUint(gen, 10) + "|" + key
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		val, err := load(ctx)
		if err != nil {
			return val, err
		}
		val = c.clone(val)
		c.mu.Lock()
		if c.gen == gen && c.ttl > 0 {
			c.entries[key] = entry[V]{value: val, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return c.clone(v.(V)), nil
}

// Invalidate removes key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gen++
	c.mu.Unlock()
	invalidations.WithLabelValues(c.name, "key").Inc()
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache[V]) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.gen++
	c.mu.Unlock()
	invalidations.WithLabelValues(c.name, "prefix").Inc()
}

// InvalidateAll empties the cache.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.gen++
	c.mu.Unlock()
	invalidations.WithLabelValues(c.name, "all").Inc()
}

// Sweep drops expired entries and reports how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.now()
	n := 0
	c.mu.Lock()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	c.mu.Unlock()
	return n
}

// Len reports the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
