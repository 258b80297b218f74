/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package singleflight provides a typed duplicate function call suppression on top of golang.org/x/sync/singleflight.
package singleflight

import (
	"golang.org/x/sync/singleflight"
)

// Group represents a class of work and forms a namespace in which
// units of work can be executed with duplicate suppression.
// The zero value is ready to use.
type Group[V any] struct {
	g singleflight.Group
}

// Do executes and returns the results of the given function, making sure that only one execution
// is in-flight for a given key at a time. A duplicate caller waits for the original one
// and receives the same results, shared reports whether the result was given to multiple callers.
// A panic in fn is propagated to the callers.
func (g *Group[V]) Do(key string, fn func() (V, error)) (val V, err error, shared bool) {
	res, err, shared := g.g.Do(key, func() (interface{}, error) {
		return fn()
	})
	if res != nil {
		val = res.(V)
	}
	return val, err, shared
}

// Forget makes the next Do call for the key run the function instead of waiting for the in-flight one.
func (g *Group[V]) Forget(key string) {
	g.g.Forget(key)
}
