// Package cache is a bounded, TTL-based in-process cache for expensive read
// queries (inventory and menu snapshots, report aggregates).
//
// Eviction is FIFO by insertion order, not LRU: reading an entry does not
// protect it from eviction. Entries are grouped into families by the key
// prefix before the first ':'. Invalidating a family bumps its generation so
// a value computed before the invalidation can never be stored or served
// after it, even when the invalidation races the read.
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

type entry struct {
	key        string
	value      any
	createdAt  time.Time
	ttl        time.Duration
	generation uint64
	elem       *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Size          int    `json:"size"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Expirations   uint64 `json:"expirations"`
	Invalidations uint64 `json:"invalidations"`
}

// Cache is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       *list.List // oldest insertion at Front
	generations map[string]uint64
	maxSize     int
	defaultTTL  time.Duration
	now         func() time.Time
	stats       Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most maxSize entries. defaultTTL is used by
// Set when ttl <= 0.
func New(maxSize int, defaultTTL time.Duration, opts ...Option) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		entries:     make(map[string]*entry),
		order:       list.New(),
		generations: make(map[string]uint64),
		maxSize:     maxSize,
		defaultTTL:  defaultTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Family returns the key family, the prefix before the first ':'.
func Family(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// Get returns the value for key if present, unexpired and not superseded by
// a family invalidation. Dead entries are purged on lookup.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if e.expired(c.now()) {
		c.removeLocked(e)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}
	if e.generation != c.generations[Family(key)] {
		c.removeLocked(e)
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set inserts or overwrites key. An overwrite re-inserts the key as the
// newest entry. Inserting a new key at capacity evicts the oldest-inserted
// entry first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl, c.generations[Family(key)])
}

func (c *Cache) setLocked(key string, value any, ttl time.Duration, gen uint64) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	} else if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.removeLocked(front.Value.(*entry))
			c.stats.Evictions++
		}
	}
	e := &entry{
		key:        key,
		value:      value,
		createdAt:  c.now(),
		ttl:        ttl,
		generation: gen,
	}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e
}

// Delete removes key immediately.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Clear removes every entry and bumps every known family generation.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fam := range c.generations {
		c.generations[fam]++
	}
	for _, e := range c.entries {
		c.generations[Family(e.key)]++
	}
	c.entries = make(map[string]*entry)
	c.order.Init()
	c.stats.Invalidations++
}

// Invalidate bumps the generation of each family and drops its entries.
func (c *Cache) Invalidate(families ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fam := range families {
		c.generations[fam]++
		for key, e := range c.entries {
			if Family(key) == fam {
				c.removeLocked(e)
			}
		}
		c.stats.Invalidations++
	}
}

// Generation returns the current generation of a family.
func (c *Cache) Generation(family string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[family]
}

// SetIfGeneration stores value only if the key's family is still at gen.
// It reports whether the value was stored.
func (c *Cache) SetIfGeneration(key string, value any, ttl time.Duration, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[Family(key)] != gen {
		return false
	}
	c.setLocked(key, value, ttl, gen)
	return true
}

// Len returns the number of stored entries, including expired ones not yet
// purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}
