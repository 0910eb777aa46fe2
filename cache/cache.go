package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BOUNDED CACHE - TTL + size limited key/value store
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every cache-like structure in the bot goes through this type so that no
// map can grow without a declared size and TTL. Eviction order:
//   1. LRU when max entries is exceeded on insert
//   2. Background sweep removes expired entries every cleanup interval
//
// Misses degrade gracefully to recompute/refetch, so there is no failure mode.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config declares the bounds of a cache at construction time
type Config struct {
	MaxEntries      int
	TTL             time.Duration
	Sliding         bool // refresh expiry on access
	CleanupInterval time.Duration
	MemoryThreshold int64 // bytes, logging only; 0 disables
	EntryBytes      int64 // rough per-entry estimate for memory stats
}

// Stats is a read-only snapshot of cache occupancy
type Stats struct {
	Size         int
	ApproxMemory int64
	Evictions    int64
	Expirations  int64
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	expiresAt  time.Time
	lastAccess time.Time
	elem       *list.Element
}

// Cache is a TTL+size bounded store, safe for concurrent use.
// A single mutex covers each instance; contention here is negligible next to
// the network calls the cache fronts.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	name    string
	cfg     Config
	entries map[K]*entry[K, V]
	lru     *list.List // front = most recently used

	evictions   int64
	expirations int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a bounded cache and starts its background sweeper
func New[K comparable, V any](name string, cfg Config) *Cache[K, V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.EntryBytes <= 0 {
		cfg.EntryBytes = 256
	}

	c := &Cache[K, V]{
		name:    name,
		cfg:     cfg,
		entries: make(map[K]*entry[K, V]),
		lru:     list.New(),
		stopCh:  make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Set inserts or replaces a value, evicting the LRU entry when full
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.insertedAt = now
		e.lastAccess = now
		if c.cfg.TTL > 0 {
			e.expiresAt = now.Add(c.cfg.TTL)
		}
		c.lru.MoveToFront(e.elem)
		return
	}

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldest()
	}

	e := &entry[K, V]{
		key:        key,
		insertedAt: now,
		lastAccess: now,
		value:      value,
	}
	if c.cfg.TTL > 0 {
		e.expiresAt = now.Add(c.cfg.TTL)
	}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e

	if c.cfg.MemoryThreshold > 0 {
		if mem := int64(len(c.entries)) * c.cfg.EntryBytes; mem > c.cfg.MemoryThreshold {
			log.Warn().
				Str("cache", c.name).
				Int("entries", len(c.entries)).
				Int64("approx_bytes", mem).
				Msg("⚠️ Cache above memory threshold")
		}
	}
}

// Get returns the value for key, if present and not expired
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	now := time.Now().UTC()
	if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
		c.removeEntry(e)
		c.expirations++
		return zero, false
	}

	e.lastAccess = now
	if c.cfg.Sliding && c.cfg.TTL > 0 {
		e.expiresAt = now.Add(c.cfg.TTL)
	}
	c.lru.MoveToFront(e.elem)

	return e.value, true
}

// Delete removes a key if present
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeEntry(e)
	}
}

// Len returns the current number of entries
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetStats returns an occupancy snapshot
func (c *Cache[K, V]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:         len(c.entries),
		ApproxMemory: int64(len(c.entries)) * c.cfg.EntryBytes,
		Evictions:    c.evictions,
		Expirations:  c.expirations,
	}
}

// Stop halts the background sweeper. Safe to call more than once.
func (c *Cache[K, V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// evictOldest drops the least recently used entry. Caller holds the lock.
func (c *Cache[K, V]) evictOldest() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.removeEntry(back.Value.(*entry[K, V]))
	c.evictions++
}

func (c *Cache[K, V]) removeEntry(e *entry[K, V]) {
	c.lru.Remove(e.elem)
	delete(c.entries, e.key)
}

// sweepLoop removes expired entries at the configured interval
func (c *Cache[K, V]) sweepLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache[K, V]) sweep() {
	if c.cfg.TTL <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for _, e := range c.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			c.removeEntry(e)
			c.expirations++
			removed++
		}
	}

	if removed > 0 {
		log.Debug().
			Str("cache", c.name).
			Int("removed", removed).
			Int("remaining", len(c.entries)).
			Msg("Cache sweep complete")
	}
}
