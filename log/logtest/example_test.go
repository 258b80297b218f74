/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"fmt"

	"github.com/acronis/go-resourcekit/log"
)

func Example() {
	evict := func(keys []string, logger log.FieldLogger) {
		logger.Info("cache keys evicted", log.Int("deleted", len(keys)), log.String("pattern", "user:"))
	}

	logRecorder := NewRecorder()
	evict([]string{"user:1", "user:2"}, logRecorder)

	if logEntry, found := logRecorder.FindEntry("cache keys evicted"); found {
		fmt.Printf("[%s] %s\n", logEntry.Level, logEntry.Text)
		if deleted, ok := logEntry.FindField("deleted"); ok {
			fmt.Printf("deleted: %d\n", deleted.Int)
		}
		if pattern, ok := logEntry.StringField("pattern"); ok {
			fmt.Printf("pattern: %s\n", pattern)
		}
	}

	// Output:
	// [info] cache keys evicted
	// deleted: 2
	// pattern: user:
}
