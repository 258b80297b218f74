/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "context"

// KeyFunc builds a rate limiting key from the call context.
type KeyFunc func(ctx context.Context) (string, error)

// StaticKey returns KeyFunc which always returns the key.
func StaticKey(key string) KeyFunc {
	return func(context.Context) (string, error) {
		return key, nil
	}
}

// Wrap decorates fn with rate limiting: fn is called only if the limit of the key is not exceeded,
// otherwise *ExceededError is returned.
func Wrap[T any](svc *Service, opts LimitOpts, keyFn KeyFunc, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var zero T
		key, err := keyFn(ctx)
		if err != nil {
			return zero, err
		}
		if err = svc.Enforce(ctx, svc.defaultRequest(key, opts)); err != nil {
			return zero, err
		}
		return fn(ctx)
	}
}

// WrapFunc is Wrap for functions which return only an error.
func WrapFunc(svc *Service, opts LimitOpts, keyFn KeyFunc, fn func(ctx context.Context) error) func(ctx context.Context) error {
	wrapped := Wrap(svc, opts, keyFn, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return func(ctx context.Context) error {
		_, err := wrapped(ctx)
		return err
	}
}
