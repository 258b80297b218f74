/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockClock returns a mock clock set to now.
func newMockClock(now time.Time) *clock.Mock {
	clk := clock.NewMock()
	clk.Set(now)
	return clk
}

type User struct {
	Name string
}

type testMetrics struct {
	Amount      int
	Hits        int
	Misses      int
	Evictions   int
	Expirations int
}

func assertMetrics(t *testing.T, want testMetrics, pm *PrometheusMetrics) {
	t.Helper()
	assert.Equal(t, want.Amount, int(testutil.ToFloat64(pm.EntriesAmount.With(nil))))
	assert.Equal(t, want.Hits, int(testutil.ToFloat64(pm.HitsTotal.With(nil))))
	assert.Equal(t, want.Misses, int(testutil.ToFloat64(pm.MissesTotal.With(nil))))
	assert.Equal(t, want.Evictions, int(testutil.ToFloat64(pm.EvictionsTotal.With(nil))))
	assert.Equal(t, want.Expirations, int(testutil.ToFloat64(pm.ExpirationsTotal.With(nil))))
}

func TestLRUCache(t *testing.T) {
	users := map[string]User{
		"user:1":   {"Bob"},
		"user:42":  {"John"},
		"user:777": {"Ivan"},
	}
	fillCache := func(cache *LRUCache[string, User]) {
		for _, key := range []string{"user:1", "user:42", "user:777"} {
			cache.Add(key, users[key])
		}
	}

	tests := []struct {
		name        string
		maxEntries  int
		fn          func(t *testing.T, cache *LRUCache[string, User])
		wantMetrics testMetrics
	}{
		{
			name:       "attempt to get not existing keys",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				for key := range users {
					_, found := cache.Get(key)
					require.False(t, found)
				}
			},
			wantMetrics: testMetrics{Misses: len(users)},
		},
		{
			name:       "add entries and get them",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)
				for key, wantUser := range users {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, wantUser, val)
				}
			},
			wantMetrics: testMetrics{Amount: len(users), Hits: len(users)},
		},
		{
			name:       "add entries with evictions",
			maxEntries: len(users) - 1,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache) // "user:1" is evicted.
				_, found := cache.Get("user:1")
				require.False(t, found)
				_, found = cache.Get("user:42")
				require.True(t, found)
			},
			wantMetrics: testMetrics{Amount: len(users) - 1, Hits: 1, Misses: 1, Evictions: 1},
		},
		{
			name:       "remove entries",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)
				require.False(t, cache.Remove("user:100500"))
				require.True(t, cache.Remove("user:42"))
			},
			wantMetrics: testMetrics{Amount: len(users) - 1},
		},
		{
			name:       "resize with evictions",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, User]) {
				fillCache(cache)
				_, found := cache.Get("user:1")
				require.True(t, found)

				require.Equal(t, 2, cache.Resize(1))

				_, found = cache.Get("user:1")
				require.True(t, found)
				_, found = cache.Get("user:777")
				require.False(t, found)
			},
			wantMetrics: testMetrics{Amount: 1, Hits: 2, Misses: 1, Evictions: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := NewPrometheusMetrics()
			cache, err := New[string, User](tt.maxEntries, pm)
			require.NoError(t, err)
			tt.fn(t, cache)
			assertMetrics(t, tt.wantMetrics, pm)
		})
	}
}

func TestLRUCache_Expiration(t *testing.T) {
	clk := newMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	t.Run("expire after write", func(t *testing.T) {
		cache, err := NewWithOpts[string, int](10, nil, Options[string, int]{DefaultTTL: time.Minute, Clock: clk})
		require.NoError(t, err)

		cache.Add("a", 1)
		cache.AddWithTTL("b", 2, 10*time.Second)

		clk.Add(10 * time.Second)
		_, found := cache.Get("b")
		require.False(t, found)
		val, found := cache.Get("a")
		require.True(t, found)
		require.Equal(t, 1, val)

		clk.Add(50 * time.Second)
		_, found = cache.Get("a")
		require.False(t, found)
		require.Equal(t, 0, cache.Len())
	})

	t.Run("expire after access", func(t *testing.T) {
		cache, err := NewWithOpts[string, int](10, nil, Options[string, int]{
			DefaultTTL: time.Hour, ExpireAfterAccess: time.Minute, Clock: clk})
		require.NoError(t, err)

		cache.Add("a", 1)
		cache.Add("b", 2)
		for i := 0; i < 3; i++ {
			clk.Add(40 * time.Second)
			_, found := cache.Get("a")
			require.True(t, found)
		}
		_, found := cache.Peek("b")
		require.False(t, found)
	})

	t.Run("write clock wins over access clock", func(t *testing.T) {
		cache, err := NewWithOpts[string, int](10, nil, Options[string, int]{
			DefaultTTL: time.Minute, ExpireAfterAccess: 40 * time.Second, Clock: clk})
		require.NoError(t, err)

		cache.Add("a", 1)
		clk.Add(30 * time.Second)
		_, found := cache.Get("a")
		require.True(t, found)
		clk.Add(30 * time.Second)
		_, found = cache.Get("a")
		require.False(t, found)
	})

	t.Run("remove expired", func(t *testing.T) {
		var removed []string
		pm := NewPrometheusMetrics()
		cache, err := NewWithOpts[string, int](10, pm, Options[string, int]{
			Clock: clk,
			OnRemove: func(key string, _ int, reason RemovalReason) {
				removed = append(removed, key+":"+reason.String())
			},
		})
		require.NoError(t, err)

		cache.AddWithTTL("a", 1, time.Second)
		cache.AddWithTTL("b", 2, time.Hour)
		cache.Add("c", 3)
		clk.Add(time.Minute)

		require.Equal(t, 1, cache.RemoveExpired())
		require.Equal(t, []string{"a:expired"}, removed)
		require.Equal(t, []string{"c", "b"}, cache.Keys())
		assertMetrics(t, testMetrics{Amount: 2, Expirations: 1}, pm)
	})
}

func TestLRUCache_RemoveIf(t *testing.T) {
	var removed []string
	cache, err := NewWithOpts[string, int](3, nil, Options[string, int]{
		OnRemove: func(key string, _ int, reason RemovalReason) {
			removed = append(removed, key+":"+reason.String())
		},
	})
	require.NoError(t, err)

	cache.Add("user:1", 1)
	cache.Add("post:1", 2)
	cache.Add("user:2", 3)
	cache.Add("post:2", 4) // "user:1" is evicted.

	n := cache.RemoveIf(func(key string, _ int) bool { return strings.Contains(key, "user") })
	require.Equal(t, 1, n)
	require.Equal(t, []string{"post:2", "post:1"}, cache.Keys())

	cache.Purge()
	require.Equal(t, 0, cache.Len())

	sort.Strings(removed)
	require.Equal(t, []string{"post:1:explicit", "post:2:explicit", "user:1:evicted", "user:2:explicit"}, removed)
}

func TestLRUCache_GetOrAdd(t *testing.T) {
	cache, err := New[string, int](10, nil)
	require.NoError(t, err)

	val, exists := cache.GetOrAdd("a", func() int { return 1 })
	require.False(t, exists)
	require.Equal(t, 1, val)

	val, exists = cache.GetOrAdd("a", func() int { return 2 })
	require.True(t, exists)
	require.Equal(t, 1, val)
}

func TestLRUCache_RunPeriodicCleanup(t *testing.T) {
	cache, err := NewWithOpts[string, int](10, nil, Options[string, int]{DefaultTTL: 10 * time.Millisecond})
	require.NoError(t, err)
	cache.Add("a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cache.RunPeriodicCleanup(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewWithOpts_Validation(t *testing.T) {
	_, err := New[string, int](0, nil)
	require.Error(t, err)
	_, err = NewWithOpts[string, int](1, nil, Options[string, int]{DefaultTTL: -1})
	require.Error(t, err)
	_, err = NewWithOpts[string, int](1, nil, Options[string, int]{ExpireAfterAccess: -1})
	require.Error(t, err)
}
