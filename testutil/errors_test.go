/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireErrorIsAll(t *testing.T) {
	sentinelErr := errors.New("provider is unavailable")
	causeErr := errors.New("connection refused")

	mockT := &MockT{}
	RequireErrorIsAll(mockT, fmt.Errorf("%w: get: %w", sentinelErr, causeErr), []error{sentinelErr, causeErr})
	require.False(t, mockT.Failed)

	RequireErrorIsAll(mockT, fmt.Errorf("get: %w", causeErr), []error{sentinelErr, causeErr})
	require.True(t, mockT.Failed)
}
