/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger which records entries in memory,
// so tests may assert what and at which level a component logged.
package logtest
