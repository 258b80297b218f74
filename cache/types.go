/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"fmt"
	"reflect"
	"time"
)

// Entry is a cached value with its metadata. It's used by the in-process providers.
type Entry struct {
	Key       string
	Value     interface{}
	CreatedAt time.Time
	// ExpiresAt is zero if the entry never expires by the write clock, otherwise it's not before CreatedAt.
	ExpiresAt time.Time
	// Source is the name of the provider which stores the entry.
	Source string
}

// Expired reports whether the entry is expired at the moment.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func newEntry(key string, value interface{}, now time.Time, ttl time.Duration, source string) Entry {
	entry := Entry{Key: key, Value: value, CreatedAt: now, Source: source}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	return entry
}

// PutRequest describes a single put operation. Zero TTL means the default TTL of the service.
type PutRequest struct {
	Key   string
	Value interface{}
	TTL   time.Duration
}

// Result is an outcome of a typed cache lookup.
type Result[T any] struct {
	Key   string
	Value T
	Hit   bool
	// Source is the name of the provider which served the lookup.
	Source string
}

// assignValue stores value into the variable dst points to.
// Nil value is assignable to nillable types only.
func assignValue(dst interface{}, value interface{}) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Ptr || dstVal.IsNil() {
		return ErrInvalidDestination
	}
	elem := dstVal.Elem()
	if value == nil {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			elem.Set(reflect.Zero(elem.Type()))
			return nil
		}
		return fmt.Errorf("%w: nil is not assignable to %s", ErrTypeMismatch, elem.Type())
	}
	val := reflect.ValueOf(value)
	if !val.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("%w: %s is not assignable to %s", ErrTypeMismatch, val.Type(), elem.Type())
	}
	elem.Set(val)
	return nil
}
