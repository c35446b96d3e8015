// Package cache provides bounded key/value caches whose entries expire after
// a fixed time-to-live.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Observer is notified of every lookup. Used to feed cache hit metrics.
type Observer func(cache string, hit bool)

type options struct {
	clock    Clock
	observer Observer
}

// Option configures a TTL cache.
type Option func(*options)

// WithClock sets the clock used to timestamp and expire entries.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithObserver registers a lookup observer.
func WithObserver(fn Observer) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// entry is a cached value and the time it was stored.
type entry[V any] struct {
	value     V
	timestamp time.Time
}

// TTL is a fixed-capacity cache with per-entry expiry.
//
// Eviction on overflow removes the oldest insertion: reads go through Peek,
// so lookups never refresh an entry's position. An entry older than the TTL
// is treated as absent and removed on read. Safe for concurrent use; for
// concurrent writers to the same key the last write wins.
type TTL[K comparable, V any] struct {
	name     string
	ttl      time.Duration
	clock    Clock
	observer Observer
	entries  *lru.Cache[K, entry[V]]
}

// New creates a TTL cache holding at most capacity entries.
func New[K comparable, V any](name string, capacity int, ttl time.Duration, opts ...Option) (*TTL[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache %s: capacity must be positive, got %d", name, capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache %s: ttl must be positive, got %s", name, ttl)
	}

	o := options{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := lru.New[K, entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}

	return &TTL[K, V]{
		name:     name,
		ttl:      ttl,
		clock:    o.clock,
		observer: o.observer,
		entries:  entries,
	}, nil
}

// Get returns the value for key if present and not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := c.entries.Peek(key)
	if ok && c.clock.Now().Sub(e.timestamp) >= c.ttl {
		c.entries.Remove(key)
		ok = false
	}
	if c.observer != nil {
		c.observer(c.name, ok)
	}
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, stamped with the current time. Re-setting an
// existing key counts as a fresh insertion.
func (c *TTL[K, V]) Set(key K, value V) {
	c.entries.Remove(key)
	c.entries.Add(key, entry[V]{value: value, timestamp: c.clock.Now()})
}

// Evict removes key. Reports whether it was present.
func (c *TTL[K, V]) Evict(key K) bool {
	return c.entries.Remove(key)
}

// Len returns the number of stored entries, including ones that have expired
// but not yet been read.
func (c *TTL[K, V]) Len() int {
	return c.entries.Len()
}

// Purge removes every entry.
func (c *TTL[K, V]) Purge() {
	c.entries.Purge()
}

// Name returns the cache name used in metrics and logs.
func (c *TTL[K, V]) Name() string {
	return c.name
}
