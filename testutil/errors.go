/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"
)

// RequireErrorIsAll asserts that err's chain matches every target.
// It's handy for errors wrapping both a sentinel (e.g. "provider is unavailable") and the underlying cause.
func RequireErrorIsAll(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var missing []error
	for _, target := range targets {
		if !errors.Is(err, target) {
			missing = append(missing, target)
		}
	}
	if len(missing) == 0 {
		return
	}
	require.FailNow(t, fmt.Sprintf("Error chain doesn't contain some of the targets:\n"+
		"chain: %s\nmissing: %s", chainText(err), targetsText(missing)), msgAndArgs...)
}

func chainText(err error) string {
	if err == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q", err.Error())
}

func targetsText(targets []error) string {
	texts := make([]string, 0, len(targets))
	for _, target := range targets {
		texts = append(texts, fmt.Sprintf("%q", target.Error()))
	}
	return strings.Join(texts, ", ")
}
