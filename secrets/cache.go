package secrets

import (
	"sync"
	"time"
)

// Cache defaults.
const (
	// DefaultCacheTTL is how long a decrypted secret stays valid in the cache.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheSize is the hard bound on cached entries.
	DefaultCacheSize = 1000

	// evictionMargin is how far under the size bound a forced eviction sweeps,
	// so a burst of inserts does not re-trigger eviction on every put.
	evictionMargin = 10
)

type cachedSecret struct {
	plaintext string
	expiresAt time.Time
}

// Cache is a bounded TTL cache mapping secret ciphertext to decrypted
// plaintext. Eviction is purely lazy: expired entries are removed when seen
// on get, and swept on put when the cache is at its size bound. There is no
// expiry timer goroutine.
//
// The size bound is best-effort rather than strict LRU: when a sweep of
// expired entries is not enough, live entries are evicted in insertion order.
// That trade-off keeps the implementation a single mutex and two maps' worth
// of state.
//
// Cache is safe for concurrent use. Concurrent puts of the same ciphertext
// are idempotent since decrypting the same ciphertext yields the same
// plaintext.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cachedSecret
	order   []string // insertion order, for bounded eviction
	ttl     time.Duration
	maxSize int

	now func() time.Time // overridable in tests
}

// NewCache creates a cache with the given TTL and size bound.
// Non-positive values fall back to the defaults.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		entries: make(map[string]cachedSecret),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached plaintext for a ciphertext, or ok=false on a miss.
// An expired entry is removed and reported as a miss.
func (c *Cache) Get(ciphertext string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[ciphertext]
	if !ok {
		return "", false
	}

	if !c.now().Before(entry.expiresAt) {
		c.remove(ciphertext)
		return "", false
	}

	return entry.plaintext, true
}

// Put stores a decrypted secret with the cache TTL. When the cache is at or
// over its size bound it first sweeps expired entries; only if that was not
// enough does it evict live entries in insertion order, down to the bound
// minus a small margin.
func (c *Cache) Put(ciphertext, plaintext string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.sweepExpired()
	}
	if len(c.entries) >= c.maxSize {
		target := c.maxSize - evictionMargin
		if target < 1 {
			// Caches smaller than the margin evict one entry at a time
			// instead of draining completely.
			target = c.maxSize - 1
		}
		for len(c.entries) > target && len(c.order) > 0 {
			c.remove(c.order[0])
		}
	}

	if _, exists := c.entries[ciphertext]; !exists {
		c.order = append(c.order, ciphertext)
	}
	c.entries[ciphertext] = cachedSecret{
		plaintext: plaintext,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Len returns the current number of cached entries, including any that have
// expired but not yet been lazily removed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries. Intended for tests and secret-rotation flows.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedSecret)
	c.order = nil
}

// sweepExpired removes all entries whose TTL has elapsed. Caller holds mu.
func (c *Cache) sweepExpired() {
	now := c.now()
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			c.remove(key)
		}
	}
}

// remove deletes an entry from both the map and the order slice. Caller holds mu.
func (c *Cache) remove(ciphertext string) {
	delete(c.entries, ciphertext)
	for i, key := range c.order {
		if key == ciphertext {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
