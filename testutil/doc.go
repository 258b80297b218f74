/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains assertion helpers for tests of HTTP handlers and errors.
package testutil

type tHelper interface {
	Helper()
}
