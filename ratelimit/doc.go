/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides rate limiting with three strategies (sliding window, token bucket and fixed window)
// behind a Provider abstraction, so an application may switch between an in-process store
// and Redis shared by several instances without changing call sites.
//
// The strategy engine (CheckSlidingWindow, CheckTokenBucket, CheckFixedWindow and their Peek* variants)
// consists of pure functions which take the current per-key state and return the updated one.
// Providers own the per-key state and serialize its mutation:
//   - MemoryProvider keeps a bounded LRU store of entries, every entry has its own lock,
//     stale entries are removed by a periodic background worker;
//   - SimpleProvider uses a single lock and a map and has no background work;
//   - RedisProvider runs every check as a single Lua script, so concurrent instances never lose updates.
//
// Service applies the enabled flag and the fail-open/fail-closed policy on top of a provider,
// Middleware and Wrap enforce limits for HTTP handlers and ordinary functions.
package ratelimit
