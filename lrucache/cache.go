/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"


	"github.com/benbjohnson/clock"
)

// RemovalReason describes why an entry left the cache.
type RemovalReason int

// Removal reasons.
const (
	// RemovalReasonExplicit means the entry was removed by Remove, RemoveIf or Purge.
	RemovalReasonExplicit RemovalReason = iota
	// RemovalReasonEvicted means the entry was evicted because the cache reached its maximum size.
	RemovalReasonEvicted
	// RemovalReasonExpired means one of the entry expiration clocks fired.
	RemovalReasonExpired
)

// String returns a human-readable representation of the reason.
func (r RemovalReason) String() string {
	switch r {
	case RemovalReasonEvicted:
		return "evicted"
	case RemovalReasonExpired:
		return "expired"
	default:
		return "explicit"
	}
}

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // write clock, zero means no expiration
	idleUntil time.Time // access clock, zero means no expiration
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		return true
	}
	return !e.idleUntil.IsZero() && !now.Before(e.idleUntil)
}

// LRUCache represents an LRU cache with eviction mechanism and Prometheus metrics.
type LRUCache[K comparable, V any] struct {
	maxEntries int

	defaultTTL        time.Duration
	expireAfterAccess time.Duration
	onRemove          func(key K, value V, reason RemovalReason)
	clock             clock.Clock

	mu      sync.Mutex
	lruList *list.List
	cache   map[K]*list.Element // map of cache entries, value is a lruList element

	metricsCollector MetricsCollector
}

// Options represents options for the cache.
type Options[K comparable, V any] struct {
	// DefaultTTL is the default TTL (expire after write) for the cache entries.
	// Please note that expired entries are not removed immediately,
	// but only when they are accessed or during periodic cleanup (see RemoveExpired and RunPeriodicCleanup).
	DefaultTTL time.Duration

	// ExpireAfterAccess makes an entry expire when it was not read or written during this interval.
	// It works independently of the TTL, whichever fires first wins.
	ExpireAfterAccess time.Duration

	// OnRemove is called for every entry leaving the cache.
	// It's called with the cache lock held, so it must not call methods of the cache.
	OnRemove func(key K, value V, reason RemovalReason)

	// Clock is used for expiration. Real clock is used if nil.
	Clock clock.Clock
}

// New creates a new LRUCache with the provided maximum number of entries and metrics collector.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metricsCollector, Options[K, V]{})
}

// NewWithOpts creates a new LRUCache with the provided maximum number of entries, metrics collector, and options.
// Metrics collector is used to collect statistics about cache usage.
// It can be nil, in this case, metrics will be disabled.
func NewWithOpts[K comparable, V any](
	maxEntries int, metricsCollector MetricsCollector, opts Options[K, V],
) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must be greater or equal to 0 (no expiration)")
	}
	if opts.ExpireAfterAccess < 0 {
		return nil, fmt.Errorf("expireAfterAccess must be greater or equal to 0 (no expiration)")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return &LRUCache[K, V]{
		maxEntries:        maxEntries,
		lruList:           list.New(),
		cache:             make(map[K]*list.Element),
		metricsCollector:  metricsCollector,
		defaultTTL:        opts.DefaultTTL,
		expireAfterAccess: opts.ExpireAfterAccess,
		onRemove:          opts.OnRemove,
		clock:             opts.Clock,
	}, nil
}

// Get returns a value from the cache by the provided key.
// A successful read refreshes the access expiration clock of the entry.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key, c.clock.Now())
}

// Peek returns a value from the cache by the provided key without updating
// its recency and its access expiration clock.
func (c *LRUCache[K, V]) Peek(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, hit := c.cache[key]
	if !hit {
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.clock.Now()) {
		c.removeElement(elem, RemovalReasonExpired)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddExpirations(1)
		return value, false
	}
	return entry.value, true
}

// Add adds a value to the cache with the provided key.
// If the cache is full, the oldest entry will be removed.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL adds a value to the cache with the provided key and TTL.
// Zero TTL means the entry is expired by the access clock only (if configured).
// If the cache is full, the oldest entry will be removed.
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	entry := c.newEntry(key, value, now, ttl)
	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value = entry
		return
	}
	c.addNew(entry)
}

// GetOrAdd returns a value from the cache by the provided key.
// If the key does not exist, it adds a new value to the cache.
func (c *LRUCache[K, V]) GetOrAdd(key K, valueProvider func() V) (value V, exists bool) {
	return c.GetOrAddWithTTL(key, valueProvider, c.defaultTTL)
}

// GetOrAddWithTTL returns a value from the cache by the provided key.
// If the key does not exist, it adds a new value to the cache with the provided TTL.
func (c *LRUCache[K, V]) GetOrAddWithTTL(key K, valueProvider func() V, ttl time.Duration) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if value, exists = c.get(key, now); exists {
		return value, exists
	}
	value = valueProvider()
	c.addNew(c.newEntry(key, value, now, ttl))
	return value, false
}

// Remove removes a value from the cache by the provided key.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeElement(elem, RemovalReasonExplicit)
	c.metricsCollector.SetAmount(len(c.cache))
	return true
}

// RemoveIf removes all entries for which the predicate returns true and returns their number.
// Expired entries are removed as well (with RemovalReasonExpired) and are not counted.
// The predicate is called with the cache lock held.
func (c *LRUCache[K, V]) RemoveIf(pred func(key K, value V) bool) (removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for _, elem := range c.cache {
		entry := elem.Value.(*cacheEntry[K, V])
		if entry.expired(now) {
			c.removeElement(elem, RemovalReasonExpired)
			continue
		}
		if pred(entry.key, entry.value) {
			c.removeElement(elem, RemovalReasonExplicit)
			removed++
		}
	}
	c.metricsCollector.SetAmount(len(c.cache))
	return removed
}

// Purge clears the cache.
// Keep in mind that this method does not reset the cache size
// and does not reset Prometheus metrics except for the total number of entries.
// All removed entries will not be counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onRemove != nil {
		for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
			entry := elem.Value.(*cacheEntry[K, V])
			c.onRemove(entry.key, entry.value, RemovalReasonExplicit)
		}
	}
	c.metricsCollector.SetAmount(0)
	c.cache = make(map[K]*list.Element)
	c.lruList.Init()
}

// Resize changes the cache size and returns the number of evicted entries.
func (c *LRUCache[K, V]) Resize(size int) (evicted int) {
	if size <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxEntries = size
	evicted = len(c.cache) - size
	if evicted <= 0 {
		return 0
	}
	for i := 0; i < evicted; i++ {
		c.removeOldest()
	}
	c.metricsCollector.SetAmount(len(c.cache))
	c.metricsCollector.AddEvictions(evicted)
	return evicted
}

// Len returns the number of items in the cache.
// Expired entries which were not removed yet are counted too.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Keys returns keys of all non-expired entries from the most to the least recently used.
func (c *LRUCache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	keys := make([]K, 0, len(c.cache))
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*cacheEntry[K, V])
		if !entry.expired(now) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

// RemoveExpired removes all expired entries and returns their number.
func (c *LRUCache[K, V]) RemoveExpired() (removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for _, elem := range c.cache {
		if elem.Value.(*cacheEntry[K, V]).expired(now) {
			c.removeElement(elem, RemovalReasonExpired)
			removed++
		}
	}
	c.metricsCollector.SetAmount(len(c.cache))
	c.metricsCollector.AddExpirations(removed)
	return removed
}

// RunPeriodicCleanup runs a cycle of periodic cleanup of expired entries.
// It's supposed to be run in a separate goroutine.
func (c *LRUCache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}

func (c *LRUCache[K, V]) newEntry(key K, value V, now time.Time, ttl time.Duration) *cacheEntry[K, V] {
	entry := &cacheEntry[K, V]{key: key, value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	if c.expireAfterAccess > 0 {
		entry.idleUntil = now.Add(c.expireAfterAccess)
	}
	return entry
}

func (c *LRUCache[K, V]) get(key K, now time.Time) (value V, ok bool) {
	elem, hit := c.cache[key]
	if !hit {
		c.metricsCollector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(now) {
		c.removeElement(elem, RemovalReasonExpired)
		c.metricsCollector.SetAmount(len(c.cache))
		c.metricsCollector.AddExpirations(1)
		c.metricsCollector.IncMisses()
		return value, false
	}
	if c.expireAfterAccess > 0 {
		entry.idleUntil = now.Add(c.expireAfterAccess)
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, true
}

func (c *LRUCache[K, V]) addNew(entry *cacheEntry[K, V]) {
	c.cache[entry.key] = c.lruList.PushFront(entry)
	if len(c.cache) > c.maxEntries {
		c.removeOldest()
		c.metricsCollector.AddEvictions(1)
	}
	c.metricsCollector.SetAmount(len(c.cache))
}

func (c *LRUCache[K, V]) removeOldest() {
	if elem := c.lruList.Back(); elem != nil {
		c.removeElement(elem, RemovalReasonEvicted)
	}
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element, reason RemovalReason) {
	c.lruList.Remove(elem)
	entry := elem.Value.(*cacheEntry[K, V])
	delete(c.cache, entry.key)
	if c.onRemove != nil {
		c.onRemove(entry.key, entry.value, reason)
	}
}
