/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory store with LRU eviction policy,
// two independent expiration clocks (after write and after access), removal notifications,
// and Prometheus metrics.
// It's used as the backing store of the in-process rate limiting and caching providers.
package lrucache
