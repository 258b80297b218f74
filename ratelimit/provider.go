/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "context"

// Provider names used in the configuration.
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
	ProviderSimple = "simple"
)

// Provider owns per-key rate limiting state and serializes its mutation.
// All methods must be safe for concurrent use.
type Provider interface {
	// CheckRateLimit checks the request and records it if it's accepted.
	CheckRateLimit(ctx context.Context, req Request) (Result, error)
	// PeekRateLimit evaluates the request without recording it.
	PeekRateLimit(ctx context.Context, req Request) (Result, error)
	// ResetRateLimit removes all state of the key. The next check behaves as the very first one.
	ResetRateLimit(ctx context.Context, key string) error
	// ClearAll removes state of all keys.
	ClearAll(ctx context.Context) error
	// RequestCount returns the number of accepted requests currently counted for the key.
	RequestCount(ctx context.Context, key string) (int64, error)
	// Shutdown releases resources (stops background work). The provider must not be used after that.
	Shutdown() error
	// Name returns the provider name.
	Name() string
}
