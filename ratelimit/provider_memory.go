/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.uber.org/atomic"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/lrucache"
	"github.com/acronis/go-resourcekit/service"
)

// Default values for MemoryProvider.
const (
	DefaultMemoryMaxEntries      = 10000
	DefaultMemoryCleanupInterval = 5 * time.Minute
	DefaultMemoryStaleAfter      = time.Hour
	DefaultMemoryShutdownTimeout = 5 * time.Second
)

// memoryEntry is a per-key entry of MemoryProvider.
// All fields are guarded by mu. A retired entry was removed from the store and must not be updated anymore.
type memoryEntry struct {
	mu      sync.Mutex
	retired bool
	state   keyState
}

// MemoryProviderOpts represents options for MemoryProvider.
type MemoryProviderOpts struct {
	// MaxEntries limits the number of keys, the least recently checked key is evicted on overflow.
	MaxEntries int
	// CleanupInterval is an interval of the background removal of stale entries.
	CleanupInterval time.Duration
	// StaleAfter is a period after which an untouched entry is considered stale.
	// It should be bigger than the largest window in use.
	StaleAfter time.Duration
	// ShutdownTimeout limits waiting for the background cleanup to finish in Shutdown.
	ShutdownTimeout  time.Duration
	MetricsCollector lrucache.MetricsCollector
	Clock            clock.Clock
	Logger           log.FieldLogger
}

// MemoryProvider is an in-process Provider. Every key has its own lock, so checks for different keys don't contend.
type MemoryProvider struct {
	store       *lrucache.LRUCache[string, *memoryEntry]
	clock       clock.Clock
	logger      log.FieldLogger
	cleanupUnit *service.WorkerUnit
	removed     atomic.Int64
	stopped     atomic.Bool
}

var _ Provider = (*MemoryProvider)(nil)

// NewMemoryProvider creates a new MemoryProvider and starts the background cleanup.
// Shutdown must be called to stop it.
func NewMemoryProvider(opts MemoryProviderOpts) (*MemoryProvider, error) {
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMemoryMaxEntries
	}
	if opts.CleanupInterval == 0 {
		opts.CleanupInterval = DefaultMemoryCleanupInterval
	}
	if opts.StaleAfter == 0 {
		opts.StaleAfter = DefaultMemoryStaleAfter
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = DefaultMemoryShutdownTimeout
	}
	if opts.CleanupInterval < 0 || opts.StaleAfter < 0 || opts.ShutdownTimeout < 0 {
		return nil, fmt.Errorf("%w: memory provider intervals cannot be negative", ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	p := &MemoryProvider{clock: opts.Clock, logger: opts.Logger}
	store, err := lrucache.NewWithOpts[string, *memoryEntry](opts.MaxEntries, opts.MetricsCollector,
		lrucache.Options[string, *memoryEntry]{
			ExpireAfterAccess: opts.StaleAfter,
			OnRemove:          p.retire,
			Clock:             p.clock,
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	p.store = store

	cleanupWorker := service.NewPeriodicWorkerWithOpts(service.WorkerFunc(p.cleanup), opts.CleanupInterval, opts.Logger,
		service.PeriodicWorkerOpts{Name: "ratelimit-memory-cleanup", InitialDelay: opts.CleanupInterval})
	p.cleanupUnit = service.NewWorkerUnitWithOpts(cleanupWorker,
		service.WorkerUnitOpts{GracefulStopTimeout: opts.ShutdownTimeout})
	p.cleanupUnit.StartInBackground(opts.Logger)
	return p, nil
}

// Name returns the provider name.
func (p *MemoryProvider) Name() string {
	return ProviderMemory
}

// CheckRateLimit checks the request and records it if it's accepted.
func (p *MemoryProvider) CheckRateLimit(_ context.Context, req Request) (Result, error) {
	return p.check(req, true)
}

// PeekRateLimit evaluates the request without recording it.
func (p *MemoryProvider) PeekRateLimit(_ context.Context, req Request) (Result, error) {
	return p.check(req, false)
}

func (p *MemoryProvider) check(req Request, consume bool) (Result, error) {
	for {
		entry, _ := p.store.GetOrAdd(req.Key, func() *memoryEntry { return &memoryEntry{} })
		entry.mu.Lock()
		if entry.retired {
			// The entry was removed from the store after we got it, take the actual one.
			entry.mu.Unlock()
			continue
		}
		result, err := evaluate(&entry.state, p.clock.Now(), req, consume)
		entry.mu.Unlock()
		return result, err
	}
}

// ResetRateLimit removes all state of the key.
func (p *MemoryProvider) ResetRateLimit(_ context.Context, key string) error {
	p.store.Remove(key)
	return nil
}

// ClearAll removes state of all keys.
func (p *MemoryProvider) ClearAll(_ context.Context) error {
	p.store.Purge()
	return nil
}

// RequestCount returns the number of accepted requests currently counted for the key.
func (p *MemoryProvider) RequestCount(_ context.Context, key string) (int64, error) {
	entry, ok := p.store.Peek(key)
	if !ok {
		return 0, nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.requestCount(p.clock.Now()), nil
}

// Len returns the number of keys in the store.
func (p *MemoryProvider) Len() int {
	return p.store.Len()
}

// Cleanup removes stale entries immediately and returns their number.
func (p *MemoryProvider) Cleanup() int {
	removed := p.store.RemoveExpired()
	p.removed.Add(int64(removed))
	return removed
}

// Shutdown stops the background cleanup and waits for it at most ShutdownTimeout.
func (p *MemoryProvider) Shutdown() error {
	if !p.stopped.CompareAndSwap(false, true) {
		return nil
	}
	err := p.cleanupUnit.Stop(true)
	p.logger.Debug("memory rate limit provider is shut down", log.Int64("stale_entries_removed", p.removed.Load()))
	return err
}

func (p *MemoryProvider) cleanup(_ context.Context) error {
	if removed := p.Cleanup(); removed > 0 {
		p.logger.Debug("stale rate limit entries removed", log.Int("removed", removed), log.Int("left", p.store.Len()))
	}
	return nil
}

// retire is called by the store (with its lock held) for every removed entry.
func (p *MemoryProvider) retire(_ string, entry *memoryEntry, _ lrucache.RemovalReason) {
	entry.mu.Lock()
	entry.retired = true
	entry.mu.Unlock()
}
