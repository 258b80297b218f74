/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import "errors"

// ErrTypeMismatch is returned by Provider.Get when the stored value cannot be decoded into the destination.
var ErrTypeMismatch = errors.New("cached value type mismatch")

// ErrInvalidDestination is returned by Provider.Get when the destination is not a non-nil pointer.
var ErrInvalidDestination = errors.New("cache destination must be a non-nil pointer")

// ErrInvalidConfig is returned when caching is misconfigured (unknown provider, missing Redis client, etc.).
var ErrInvalidConfig = errors.New("invalid cache configuration")

// ErrProviderUnavailable is returned by networked providers when the backend cannot serve the request.
var ErrProviderUnavailable = errors.New("cache provider is unavailable")
