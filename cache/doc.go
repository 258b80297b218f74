/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package cache provides best-effort caching behind a provider abstraction.
// The in-process bounded provider ("caffeine"), the Redis provider ("redis") and the simple map-based
// provider ("memory") share the same Provider contract, so an application may switch between them
// by configuration without changing call sites.
//
// Caching is an optimization, never a correctness dependency: Service logs and swallows every provider
// failure and treats it as a miss or a no-op.
package cache
