/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"time"
)

// Provider names used in the configuration.
const (
	ProviderCaffeine = "caffeine"
	ProviderRedis    = "redis"
	ProviderMemory   = "memory"
)

// Provider stores cached values. All methods must be safe for concurrent use.
type Provider interface {
	// Put stores the value under the key. Non-positive ttl means the provider default.
	Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get decodes the value stored under the key into dst (a non-nil pointer).
	// It returns false without an error if there is no such key or it's expired.
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	// Evict removes the key.
	Evict(ctx context.Context, key string) error
	// EvictAll removes all keys of the provider.
	EvictAll(ctx context.Context) error
	// EvictByPattern removes every key which contains the pattern as a plain substring
	// and returns the number of removed keys.
	EvictByPattern(ctx context.Context, pattern string) (int, error)
	// Exists reports whether the key is present and not expired.
	Exists(ctx context.Context, key string) (bool, error)
	// Size returns the number of stored keys.
	Size(ctx context.Context) (int64, error)
	// Clear removes all keys of the provider.
	Clear(ctx context.Context) error
	// Name returns the provider name.
	Name() string
}
