/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisconn

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ScanBatchSize is a COUNT hint for SCAN and the maximum number of keys deleted by a single DEL.
const ScanBatchSize = 500

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// EscapeGlob escapes glob metacharacters, so s is matched literally in SCAN MATCH patterns.
func EscapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// DeleteMatching iterates keys matching the pattern with SCAN and deletes them in batches.
// Every SCAN and DEL call runs through the executor. It returns the number of deleted keys.
// The keyspace is walked in full, so it must not be used in hot paths.
func DeleteMatching(ctx context.Context, client redis.UniversalClient, exec *Executor, pattern string) (int, error) {
	deleted := 0
	err := ForEachMatching(ctx, client, exec, pattern, func(keys []string) error {
		var n int64
		if err := exec.Do(ctx, "del", func(ctx context.Context) (err error) {
			n, err = client.Del(ctx, keys...).Result()
			return err
		}); err != nil {
			return err
		}
		deleted += int(n)
		return nil
	})
	return deleted, err
}

// ForEachMatching iterates keys matching the pattern with SCAN and calls fn for every non-empty page.
func ForEachMatching(
	ctx context.Context, client redis.UniversalClient, exec *Executor, pattern string, fn func(keys []string) error,
) error {
	var cursor uint64
	for {
		var keys []string
		var next uint64
		if err := exec.Do(ctx, "scan", func(ctx context.Context) (err error) {
			keys, next, err = client.Scan(ctx, cursor, pattern, ScanBatchSize).Result()
			return err
		}); err != nil {
			return err
		}
		cursor = next
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}
