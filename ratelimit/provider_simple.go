/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"sync"


	"github.com/benbjohnson/clock"
)

// SimpleProvider is a Provider with a single lock and a map.
// It has no background work and never removes stale keys, so it's intended for tests and minimal deployments.
type SimpleProvider struct {
	clock clock.Clock
	mu    sync.Mutex
	keys  map[string]*keyState
}

var _ Provider = (*SimpleProvider)(nil)

// NewSimpleProvider creates a new SimpleProvider. Real clock is used if clk is nil.
func NewSimpleProvider(clk clock.Clock) *SimpleProvider {
	if clk == nil {
		clk = clock.New()
	}
	return &SimpleProvider{clock: clk, keys: make(map[string]*keyState)}
}

// Name returns the provider name.
func (p *SimpleProvider) Name() string {
	return ProviderSimple
}

// CheckRateLimit checks the request and records it if it's accepted.
func (p *SimpleProvider) CheckRateLimit(_ context.Context, req Request) (Result, error) {
	return p.check(req, true)
}

// PeekRateLimit evaluates the request without recording it.
func (p *SimpleProvider) PeekRateLimit(_ context.Context, req Request) (Result, error) {
	return p.check(req, false)
}

func (p *SimpleProvider) check(req Request, consume bool) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.keys[req.Key]
	if !ok {
		state = &keyState{}
	}
	result, err := evaluate(state, p.clock.Now(), req, consume)
	if err != nil {
		return Result{}, err
	}
	if !ok && consume {
		p.keys[req.Key] = state
	}
	return result, nil
}

// ResetRateLimit removes all state of the key.
func (p *SimpleProvider) ResetRateLimit(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.keys, key)
	p.mu.Unlock()
	return nil
}

// ClearAll removes state of all keys.
func (p *SimpleProvider) ClearAll(_ context.Context) error {
	p.mu.Lock()
	p.keys = make(map[string]*keyState)
	p.mu.Unlock()
	return nil
}

// RequestCount returns the number of accepted requests currently counted for the key.
func (p *SimpleProvider) RequestCount(_ context.Context, key string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok := p.keys[key]; ok {
		return state.requestCount(p.clock.Now()), nil
	}
	return 0, nil
}

// Shutdown does nothing.
func (p *SimpleProvider) Shutdown() error {
	return nil
}
