/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/log/logtest"
)

// stubProvider counts calls and fails all of them if err is set.
type stubProvider struct {
	*SimpleProvider
	calls  atomic.Int64
	err    error
	closed atomic.Bool
}

func newStubProvider(err error) *stubProvider {
	return &stubProvider{SimpleProvider: NewSimpleProvider(newMockClock(testStartTime)), err: err}
}

func (p *stubProvider) call() error {
	p.calls.Inc()
	return p.err
}

func (p *stubProvider) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := p.call(); err != nil {
		return err
	}
	return p.SimpleProvider.Put(ctx, key, value, ttl)
}

func (p *stubProvider) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if err := p.call(); err != nil {
		return false, err
	}
	return p.SimpleProvider.Get(ctx, key, dst)
}

func (p *stubProvider) Evict(ctx context.Context, key string) error {
	if err := p.call(); err != nil {
		return err
	}
	return p.SimpleProvider.Evict(ctx, key)
}

func (p *stubProvider) EvictAll(ctx context.Context) error {
	if err := p.call(); err != nil {
		return err
	}
	return p.SimpleProvider.EvictAll(ctx)
}

func (p *stubProvider) EvictByPattern(ctx context.Context, pattern string) (int, error) {
	if err := p.call(); err != nil {
		return 0, err
	}
	return p.SimpleProvider.EvictByPattern(ctx, pattern)
}

func (p *stubProvider) Exists(ctx context.Context, key string) (bool, error) {
	if err := p.call(); err != nil {
		return false, err
	}
	return p.SimpleProvider.Exists(ctx, key)
}

func (p *stubProvider) Size(ctx context.Context) (int64, error) {
	if err := p.call(); err != nil {
		return 0, err
	}
	return p.SimpleProvider.Size(ctx)
}

func (p *stubProvider) Clear(ctx context.Context) error {
	if err := p.call(); err != nil {
		return err
	}
	return p.SimpleProvider.Clear(ctx)
}

func (p *stubProvider) Close() error {
	p.closed.Store(true)
	return nil
}

func newTestService(t *testing.T, provider Provider, cfg *Config, opts ServiceOpts) *Service {
	t.Helper()
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	svc, err := NewService(provider, cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, svc.Shutdown()) })
	return svc
}

func TestService_PutGet(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip and ttl expiration", func(t *testing.T) {
		clk := newMockClock(testStartTime)
		svc := newTestService(t, newTestBoundedProvider(t, clk, BoundedProviderOpts{}), nil, ServiceOpts{})
		require.Equal(t, ProviderCaffeine, svc.ProviderName())

		svc.PutWithTTL(ctx, "k", user{ID: 1, Name: "Alice"}, 5*time.Second)
		var u user
		require.True(t, svc.Get(ctx, "k", &u))
		require.Equal(t, user{ID: 1, Name: "Alice"}, u)
		require.True(t, svc.Exists(ctx, "k"))
		require.Equal(t, int64(1), svc.Size(ctx))

		clk.Add(5 * time.Second)
		require.False(t, svc.Get(ctx, "k", &u))
		require.False(t, svc.Exists(ctx, "k"))
		require.Zero(t, svc.Size(ctx))
	})

	t.Run("default ttl", func(t *testing.T) {
		clk := newMockClock(testStartTime)
		cfg := NewDefaultConfig()
		cfg.DefaultTTL = time.Minute
		svc := newTestService(t, newTestBoundedProvider(t, clk, BoundedProviderOpts{}), cfg, ServiceOpts{})
		require.Equal(t, time.Minute, svc.DefaultTTL())

		svc.Put(ctx, "k1", "v1")
		svc.Store(ctx, PutRequest{Key: "k2", Value: "v2"})
		svc.Store(ctx, PutRequest{Key: "k3", Value: "v3", TTL: 2 * time.Minute})

		clk.Add(time.Minute)
		var v string
		require.False(t, svc.Get(ctx, "k1", &v))
		require.False(t, svc.Get(ctx, "k2", &v))
		require.True(t, svc.Get(ctx, "k3", &v))
		require.Equal(t, "v3", v)
	})

	t.Run("type mismatch is a miss", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{Logger: logRecorder})
		svc.Put(ctx, "k", "text")

		var u user
		require.False(t, svc.Get(ctx, "k", &u))
		_, found := Get[int](ctx, svc, "k")
		require.False(t, found)
		require.Empty(t, logRecorder.EntriesAtLevel(log.LevelWarn))
		require.NotEmpty(t, logRecorder.EntriesAtLevel(log.LevelDebug))
	})
}

func TestService_Evict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{})
	for _, key := range []string{"user:1", "user:2", "admin:1", "order:1"} {
		svc.Put(ctx, key, key)
	}

	svc.Evict(ctx, "order:1")
	require.False(t, svc.Exists(ctx, "order:1"))

	require.Equal(t, 2, svc.EvictByPattern(ctx, "user"))
	require.Equal(t, int64(1), svc.Size(ctx))
	require.True(t, svc.Exists(ctx, "admin:1"))

	svc.EvictAll(ctx)
	require.Zero(t, svc.Size(ctx))

	svc.Put(ctx, "k", "v")
	svc.Clear(ctx)
	require.Zero(t, svc.Size(ctx))
}

func TestService_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := NewDefaultConfig()
	cfg.Enabled = false

	t.Run("provider is not called", func(t *testing.T) {
		provider := newStubProvider(nil)
		svc := newTestService(t, provider, cfg, ServiceOpts{})
		require.False(t, svc.Enabled())

		svc.Put(ctx, "k", "v")
		svc.PutWithTTL(ctx, "k", "v", time.Second)
		var v string
		require.False(t, svc.Get(ctx, "k", &v))
		svc.Evict(ctx, "k")
		svc.EvictAll(ctx)
		require.Zero(t, svc.EvictByPattern(ctx, "k"))
		require.False(t, svc.Exists(ctx, "k"))
		require.Zero(t, svc.Size(ctx))
		svc.Clear(ctx)

		_, ok := GetAsync[string](ctx, svc, "k").Await(ctx)
		require.False(t, ok)
		_, ok = svc.PutAsync(ctx, "k", "v", 0).Await(ctx)
		require.False(t, ok)

		require.Zero(t, provider.calls.Load())

		svc.SetEnabled(true)
		svc.Put(ctx, "k", "v")
		require.True(t, svc.Get(ctx, "k", &v))
		require.Equal(t, int64(2), provider.calls.Load())
	})

	t.Run("without provider", func(t *testing.T) {
		svc := newTestService(t, nil, cfg, ServiceOpts{})
		svc.SetEnabled(true)
		require.False(t, svc.Enabled())
		require.Empty(t, svc.ProviderName())
		svc.Put(ctx, "k", "v")
		var v string
		require.False(t, svc.Get(ctx, "k", &v))
	})

	t.Run("provider is required when enabled", func(t *testing.T) {
		_, err := NewService(nil, NewDefaultConfig(), ServiceOpts{})
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestService_ProviderFailures(t *testing.T) {
	ctx := context.Background()
	providerErr := errors.New("connection refused")
	provider := newStubProvider(providerErr)
	logRecorder := logtest.NewRecorder()
	svc := newTestService(t, provider, nil, ServiceOpts{Logger: logRecorder})

	svc.Put(ctx, "k", "v")
	var v string
	require.False(t, svc.Get(ctx, "k", &v))
	svc.Evict(ctx, "k")
	svc.EvictAll(ctx)
	require.Zero(t, svc.EvictByPattern(ctx, "k"))
	require.False(t, svc.Exists(ctx, "k"))
	require.Zero(t, svc.Size(ctx))
	svc.Clear(ctx)

	_, ok := GetAsync[string](ctx, svc, "k").Await(ctx)
	require.False(t, ok)
	putFuture := svc.PutAsync(ctx, "k", "v", time.Second)
	_, ok = putFuture.Await(ctx)
	require.False(t, ok)
	require.ErrorIs(t, putFuture.Err(), providerErr)

	_, err := GetOrLoad(ctx, svc, "k", 0, func(ctx context.Context) (string, error) { return "loaded", nil })
	require.NoError(t, err)

	warnings := logRecorder.EntriesAtLevel(log.LevelWarn)
	require.Len(t, warnings, 12)
	entry, found := logRecorder.FindEntry("cache operation failed")
	require.True(t, found)
	op, found := entry.StringField("operation")
	require.True(t, found)
	require.Equal(t, "put", op)
	key, found := entry.StringField("key")
	require.True(t, found)
	require.Equal(t, "k", key)
}

func TestService_Async(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{})

	putFuture := svc.PutAsync(ctx, "user:1", user{ID: 1, Name: "Alice"}, 0)
	_, ok := putFuture.Await(ctx)
	require.True(t, ok)
	require.NoError(t, putFuture.Err())

	u, ok := GetAsync[user](ctx, svc, "user:1").Await(ctx)
	require.True(t, ok)
	require.Equal(t, user{ID: 1, Name: "Alice"}, u)

	var dst user
	_, ok = svc.GetAsync(ctx, "user:1", &dst).Await(ctx)
	require.True(t, ok)
	require.Equal(t, user{ID: 1, Name: "Alice"}, dst)

	_, ok = GetAsync[user](ctx, svc, "user:2").Await(ctx)
	require.False(t, ok)
}

func TestGenericHelpers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{})
	svc.Put(ctx, "user:1", user{ID: 1, Name: "Alice"})

	u, ok := Get[user](ctx, svc, "user:1")
	require.True(t, ok)
	require.Equal(t, 1, u.ID)

	require.Equal(t, Result[user]{Key: "user:1", Value: user{ID: 1, Name: "Alice"}, Hit: true, Source: ProviderMemory},
		Lookup[user](ctx, svc, "user:1"))
	require.Equal(t, Result[user]{Key: "user:2", Source: ProviderMemory}, Lookup[user](ctx, svc, "user:2"))
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent loads are merged", func(t *testing.T) {
		svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{})
		var loads atomic.Int64
		release := make(chan struct{})
		load := func(ctx context.Context) (user, error) {
			loads.Inc()
			<-release
			return user{ID: 1, Name: "Alice"}, nil
		}

		const callers = 10
		var wg sync.WaitGroup
		results := make([]user, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				v, err := GetOrLoad(ctx, svc, "user:1", 0, load)
				require.NoError(t, err)
				results[i] = v
			}(i)
		}
		require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		require.Equal(t, int64(1), loads.Load())
		for _, v := range results {
			require.Equal(t, user{ID: 1, Name: "Alice"}, v)
		}

		v, err := GetOrLoad(ctx, svc, "user:1", 0, load)
		require.NoError(t, err)
		require.Equal(t, "Alice", v.Name)
		require.Equal(t, int64(1), loads.Load())
	})

	t.Run("load error is not cached", func(t *testing.T) {
		svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{})
		loadErr := errors.New("not found")
		_, err := GetOrLoad(ctx, svc, "user:1", 0, func(ctx context.Context) (user, error) {
			return user{}, loadErr
		})
		require.ErrorIs(t, err, loadErr)
		require.False(t, svc.Exists(ctx, "user:1"))
	})

	t.Run("ttl", func(t *testing.T) {
		clk := newMockClock(testStartTime)
		svc := newTestService(t, newTestBoundedProvider(t, clk, BoundedProviderOpts{}), nil, ServiceOpts{})
		n := 0
		load := func(ctx context.Context) (int, error) {
			n++
			return n, nil
		}
		v, err := GetOrLoad(ctx, svc, "counter", time.Second, load)
		require.NoError(t, err)
		require.Equal(t, 1, v)
		clk.Add(time.Second)
		v, err = GetOrLoad(ctx, svc, "counter", time.Second, load)
		require.NoError(t, err)
		require.Equal(t, 2, v)
	})
}

func TestEvictAfter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, NewSimpleProvider(nil), nil, ServiceOpts{})
	for _, key := range []string{"user:1", "user:2", "user:3"} {
		svc.Put(ctx, key, key)
	}

	updateErr := errors.New("update failed")
	err := EvictAfter(ctx, svc, false, func(ctx context.Context) error { return updateErr }, "user:1")
	require.ErrorIs(t, err, updateErr)
	require.True(t, svc.Exists(ctx, "user:1"))

	err = EvictAfter(ctx, svc, false, func(ctx context.Context) error { return nil }, "user:1", "user:2")
	require.NoError(t, err)
	require.False(t, svc.Exists(ctx, "user:1"))
	require.False(t, svc.Exists(ctx, "user:2"))
	require.True(t, svc.Exists(ctx, "user:3"))

	err = EvictAfter(ctx, svc, true, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Zero(t, svc.Size(ctx))
}

func TestService_Shutdown(t *testing.T) {
	provider := newStubProvider(nil)
	svc, err := NewService(provider, nil, ServiceOpts{})
	require.NoError(t, err)
	require.NoError(t, svc.Shutdown())
	require.True(t, provider.closed.Load())

	_, ok := GetAsync[string](context.Background(), svc, "k").Await(context.Background())
	require.False(t, ok)
	require.NoError(t, svc.Shutdown())
}

func TestService_RedisValueOfAnotherType(t *testing.T) {
	ctx := context.Background()
	aliceJSON := `{"id":1,"name":"Alice"}`

	client, mock := redismock.NewClientMock()
	provider, err := NewRedisProvider(client, RedisProviderOpts{})
	require.NoError(t, err)
	logRecorder := logtest.NewRecorder()
	svc := newTestService(t, provider, nil, ServiceOpts{Logger: logRecorder})

	mock.ExpectSet("cache:user:1", rawEncoded(userTypeTag, aliceJSON), DefaultTTL).SetVal("OK")
	svc.Put(ctx, "user:1", user{ID: 1, Name: "Alice"})

	mock.ExpectGet("cache:user:1").SetVal(string(rawEncoded(userTypeTag, aliceJSON)))
	o := order{Total: 7}
	require.False(t, svc.Get(ctx, "user:1", &o))
	require.Equal(t, order{Total: 7}, o)

	mock.ExpectGet("cache:user:1").SetVal(string(rawEncoded(userTypeTag, aliceJSON)))
	_, found := Get[order](ctx, svc, "user:1")
	require.False(t, found)

	mock.ExpectGet("cache:user:1").SetVal(string(rawEncoded(userTypeTag, aliceJSON)))
	u, found := Get[user](ctx, svc, "user:1")
	require.True(t, found)
	require.Equal(t, user{ID: 1, Name: "Alice"}, u)

	loaded := order{Total: 42, Items: []string{"pen"}}
	orderTypeTag := "github.com/acronis/go-resourcekit/cache.order"
	mock.ExpectGet("cache:user:1").SetVal(string(rawEncoded(userTypeTag, aliceJSON)))
	mock.ExpectSet("cache:user:1", rawEncoded(orderTypeTag, `{"total":42,"items":["pen"]}`), DefaultTTL).SetVal("OK")
	loads := 0
	got, err := GetOrLoad(ctx, svc, "user:1", 0, func(ctx context.Context) (order, error) {
		loads++
		return loaded, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, loads)
	require.Equal(t, loaded, got)

	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, logRecorder.FindEntries("cached value has unexpected type, treated as miss"), 3)
	require.Empty(t, logRecorder.FindEntries("cache operation failed"))
}
