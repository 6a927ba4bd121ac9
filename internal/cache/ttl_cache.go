// Package cache provides a thread-safe result cache with per-entry expiration.
//
// Rendered songs are keyed by a BLAKE3 digest of everything that affects the
// output, so identical requests hit the same entry regardless of who sent them.
package cache

import (
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTLCache is a thread-safe cache where every entry expires ttl after it was
// stored. When maxEntries is reached the entry closest to expiry is evicted.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	data       map[K]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a new TTLCache. A ttl of zero disables caching; maxEntries of
// zero means unbounded.
func New[K comparable, V any](ttl time.Duration, maxEntries int) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data:       make(map[K]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves a value from the cache.
// Returns zero value and ok=false if the key doesn't exist or has expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value and starts its TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		c.data = make(map[K]entry[V])
	}
	now := c.now()
	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.purgeLocked(now)
		if len(c.data) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.data[key] = entry[V]{value: value, expires: now.Add(c.ttl)}
}

// Delete removes a single key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Purge drops expired entries and returns how many were removed.
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

// purgeLocked MUST be called with the write lock held.
func (c *TTLCache[K, V]) purgeLocked(now time.Time) int {
	removed := 0
	for k, e := range c.data {
		if !now.Before(e.expires) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

func (c *TTLCache[K, V]) evictOldestLocked() {
	var (
		oldest K
		at     time.Time
		found  bool
	)
	for k, e := range c.data {
		if !found || e.expires.Before(at) {
			oldest, at, found = k, e.expires, true
		}
	}
	if found {
		delete(c.data, oldest)
	}
}

// Invalidate clears all cached data.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Len returns the number of items currently in the cache.
// This does not check expiration.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Key derives a cache key from a song source and the options that shape its
// rendering. Fields are length-prefixed so that no two distinct inputs share
// a byte stream.
func Key(source, format, layout string, semitones, minChordWidth int) string {
	var buf []byte
	for _, field := range []string{source, format, layout, strconv.Itoa(semitones), strconv.Itoa(minChordWidth)} {
		buf = strconv.AppendInt(buf, int64(len(field)), 10)
		buf = append(buf, ':')
		buf = append(buf, field...)
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
