/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"strings"
	"sync"
	"time"


	"github.com/benbjohnson/clock"
)

// SimpleProvider is a Provider with a single lock and a map. TTL is ignored, entries live until they are evicted.
// It's intended for tests.
type SimpleProvider struct {
	clock   clock.Clock
	mu      sync.RWMutex
	entries map[string]Entry
}

var _ Provider = (*SimpleProvider)(nil)

// NewSimpleProvider creates a new SimpleProvider. Real clock is used if clk is nil.
func NewSimpleProvider(clk clock.Clock) *SimpleProvider {
	if clk == nil {
		clk = clock.New()
	}
	return &SimpleProvider{clock: clk, entries: make(map[string]Entry)}
}

// Name returns the provider name.
func (p *SimpleProvider) Name() string {
	return ProviderMemory
}

// Put stores the value. ttl is ignored.
func (p *SimpleProvider) Put(_ context.Context, key string, value interface{}, _ time.Duration) error {
	entry := newEntry(key, value, p.clock.Now(), 0, ProviderMemory)
	p.mu.Lock()
	p.entries[key] = entry
	p.mu.Unlock()
	return nil
}

// Get decodes the stored value into dst.
func (p *SimpleProvider) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := assignValue(dst, entry.Value); err != nil {
		return false, err
	}
	return true, nil
}

// Evict removes the key.
func (p *SimpleProvider) Evict(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
	return nil
}

// EvictAll removes all entries.
func (p *SimpleProvider) EvictAll(_ context.Context) error {
	p.mu.Lock()
	p.entries = make(map[string]Entry)
	p.mu.Unlock()
	return nil
}

// EvictByPattern removes every key containing the pattern.
func (p *SimpleProvider) EvictByPattern(_ context.Context, pattern string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for key := range p.entries {
		if strings.Contains(key, pattern) {
			delete(p.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Exists reports whether the key is present.
func (p *SimpleProvider) Exists(_ context.Context, key string) (bool, error) {
	p.mu.RLock()
	_, ok := p.entries[key]
	p.mu.RUnlock()
	return ok, nil
}

// Size returns the number of entries.
func (p *SimpleProvider) Size(_ context.Context) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int64(len(p.entries)), nil
}

// Clear removes all entries.
func (p *SimpleProvider) Clear(ctx context.Context) error {
	return p.EvictAll(ctx)
}
