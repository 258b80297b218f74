/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/acronis/go-resourcekit/lrucache"
)

// Default values for BoundedProvider.
const (
	DefaultMaximumSize       = 10000
	DefaultExpireAfterWrite  = 10 * time.Minute
	DefaultExpireAfterAccess = 5 * time.Minute
)

// BoundedProviderOpts represents options for BoundedProvider.
type BoundedProviderOpts struct {
	// MaximumSize limits the number of entries, the least recently used entry is evicted on overflow.
	MaximumSize int
	// ExpireAfterWrite is the longest time an entry lives after it was put.
	ExpireAfterWrite time.Duration
	// ExpireAfterAccess expires an entry which was not read or written during this period.
	ExpireAfterAccess time.Duration
	// MetricsCollector enables statistics of the store.
	MetricsCollector lrucache.MetricsCollector
	Clock            clock.Clock
}

// BoundedProvider is an in-process Provider with the maximum size and two independent expiration clocks
// (after write and after access), the clock which fires first wins.
type BoundedProvider struct {
	store            *lrucache.LRUCache[string, Entry]
	expireAfterWrite time.Duration
	clock            clock.Clock
}

var _ Provider = (*BoundedProvider)(nil)

// NewBoundedProvider creates a new BoundedProvider. Zero options are replaced with defaults.
func NewBoundedProvider(opts BoundedProviderOpts) (*BoundedProvider, error) {
	if opts.MaximumSize == 0 {
		opts.MaximumSize = DefaultMaximumSize
	}
	if opts.ExpireAfterWrite == 0 {
		opts.ExpireAfterWrite = DefaultExpireAfterWrite
	}
	if opts.ExpireAfterAccess == 0 {
		opts.ExpireAfterAccess = DefaultExpireAfterAccess
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	store, err := lrucache.NewWithOpts[string, Entry](opts.MaximumSize, opts.MetricsCollector, lrucache.Options[string, Entry]{
		DefaultTTL:        opts.ExpireAfterWrite,
		ExpireAfterAccess: opts.ExpireAfterAccess,
		Clock:             clk,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &BoundedProvider{store: store, expireAfterWrite: opts.ExpireAfterWrite, clock: clk}, nil
}

// Name returns the provider name.
func (p *BoundedProvider) Name() string {
	return ProviderCaffeine
}

// Put stores the value.
// The store-wide ExpireAfterWrite is an upper bound of the entry lifetime: ttl longer than it is capped,
// non-positive ttl means ExpireAfterWrite.
func (p *BoundedProvider) Put(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 || ttl > p.expireAfterWrite {
		ttl = p.expireAfterWrite
	}
	p.store.AddWithTTL(key, newEntry(key, value, p.clock.Now(), ttl, ProviderCaffeine), ttl)
	return nil
}

// Get decodes the stored value into dst.
func (p *BoundedProvider) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	entry, ok := p.store.Get(key)
	if !ok {
		return false, nil
	}
	if err := assignValue(dst, entry.Value); err != nil {
		return false, err
	}
	return true, nil
}

// Evict removes the key.
func (p *BoundedProvider) Evict(_ context.Context, key string) error {
	p.store.Remove(key)
	return nil
}

// EvictAll removes all entries.
func (p *BoundedProvider) EvictAll(_ context.Context) error {
	p.store.Purge()
	return nil
}

// EvictByPattern removes every key containing the pattern.
func (p *BoundedProvider) EvictByPattern(_ context.Context, pattern string) (int, error) {
	return p.store.RemoveIf(func(key string, _ Entry) bool {
		return strings.Contains(key, pattern)
	}), nil
}

// Exists reports whether the key is present. It doesn't refresh the access clock of the entry.
func (p *BoundedProvider) Exists(_ context.Context, key string) (bool, error) {
	_, ok := p.store.Peek(key)
	return ok, nil
}

// Size returns the number of not expired entries.
func (p *BoundedProvider) Size(_ context.Context) (int64, error) {
	p.store.RemoveExpired()
	return int64(p.store.Len()), nil
}

// Clear removes all entries.
func (p *BoundedProvider) Clear(ctx context.Context) error {
	return p.EvictAll(ctx)
}
