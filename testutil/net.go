/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// ClosedTCPAddr returns a loopback "host:port" address that nothing listens on.
// Dialing it fails fast with "connection refused", which makes it handy for testing
// fail-open and fail-closed paths of remote backends without a real server.
func ClosedTCPAddr(t testing.TB) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}
