/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-resourcekit/internal/singleflight"
	"github.com/acronis/go-resourcekit/log"
)

// DefaultTTL is a default time-to-live of entries stored without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// ServiceOpts represents options for Service.
type ServiceOpts struct {
	Logger log.FieldLogger
	// AsyncStopTimeout limits waiting for running async operations in Shutdown. Zero means without limit.
	AsyncStopTimeout time.Duration
}

// Service is a best-effort cache on top of a Provider.
//
// Caching is an optimization and never a correctness dependency:
// every provider failure is logged and turned into a miss or a no-op, so no method returns it to the caller.
// When caching is disabled, gets always miss and puts and evictions do nothing.
type Service struct {
	provider   Provider
	enabled    atomic.Bool
	defaultTTL time.Duration
	async      *AsyncRunner
	loads      singleflight.Group[interface{}]
	logger     log.FieldLogger
	stopTO     time.Duration
}

// NewService creates a new Service. Provider may be nil only if caching is disabled.
func NewService(provider Provider, cfg *Config, opts ServiceOpts) (*Service, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if provider == nil && cfg.Enabled {
		return nil, fmt.Errorf("%w: provider is required when caching is enabled", ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	s := &Service{
		provider:   provider,
		defaultTTL: defaultTTL,
		async:      NewAsyncRunner(cfg.Async.MaxInFlight, opts.Logger),
		logger:     opts.Logger,
		stopTO:     opts.AsyncStopTimeout,
	}
	s.enabled.Store(cfg.Enabled)
	return s, nil
}

// Enabled reports whether caching is enabled.
func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled switches caching on or off at runtime. It cannot be switched on if the service has no provider.
func (s *Service) SetEnabled(enabled bool) {
	if enabled && s.provider == nil {
		return
	}
	s.enabled.Store(enabled)
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// DefaultTTL returns TTL which is used when the value is put without an explicit one.
func (s *Service) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Put stores the value with the default TTL.
func (s *Service) Put(ctx context.Context, key string, value interface{}) {
	s.PutWithTTL(ctx, key, value, s.defaultTTL)
}

// PutWithTTL stores the value with the given TTL. Non-positive ttl means the default TTL.
func (s *Service) PutWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	_ = s.put(ctx, key, value, ttl)
}

// Store stores the value described by the request.
func (s *Service) Store(ctx context.Context, req PutRequest) {
	s.PutWithTTL(ctx, req.Key, req.Value, req.TTL)
}

func (s *Service) put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.provider.Put(ctx, key, value, ttl); err != nil {
		s.onFailure("put", key, err)
		return err
	}
	return nil
}

// Get reads the value into dst (a non-nil pointer) and reports whether it was found.
// A stored value of another type is a miss.
func (s *Service) Get(ctx context.Context, key string, dst interface{}) bool {
	found, _ := s.get(ctx, key, dst)
	return found
}

func (s *Service) get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	found, err := s.provider.Get(ctx, key, dst)
	if err != nil {
		if errors.Is(err, ErrTypeMismatch) {
			s.logger.Debug("cached value has unexpected type, treated as miss", log.String("key", key), log.Error(err))
		} else {
			s.onFailure("get", key, err)
		}
		return false, err
	}
	return found, nil
}

// GetAsync reads the value into dst off the calling goroutine.
// dst must not be accessed until the future is resolved.
func (s *Service) GetAsync(ctx context.Context, key string, dst interface{}) *Future[struct{}] {
	return RunAsync(ctx, s.async, func(ctx context.Context) (struct{}, bool, error) {
		found, err := s.get(ctx, key, dst)
		return struct{}{}, found, err
	})
}

// PutAsync stores the value off the calling goroutine. Non-positive ttl means the default TTL.
// The future resolves to true when the value was stored.
func (s *Service) PutAsync(ctx context.Context, key string, value interface{}, ttl time.Duration) *Future[struct{}] {
	return RunAsync(ctx, s.async, func(ctx context.Context) (struct{}, bool, error) {
		if !s.Enabled() {
			return struct{}{}, false, nil
		}
		if err := s.put(ctx, key, value, ttl); err != nil {
			return struct{}{}, false, err
		}
		return struct{}{}, true, nil
	})
}

// Evict removes the entry.
func (s *Service) Evict(ctx context.Context, key string) {
	if !s.Enabled() {
		return
	}
	if err := s.provider.Evict(ctx, key); err != nil {
		s.onFailure("evict", key, err)
	}
}

// EvictAll removes all entries of the cache.
func (s *Service) EvictAll(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.provider.EvictAll(ctx); err != nil {
		s.onFailure("evict_all", "", err)
	}
}

// EvictByPattern removes entries whose keys contain pattern as a plain substring
// (no glob or regular expression semantics) and returns their number.
func (s *Service) EvictByPattern(ctx context.Context, pattern string) int {
	if !s.Enabled() {
		return 0
	}
	n, err := s.provider.EvictByPattern(ctx, pattern)
	if err != nil {
		s.onFailure("evict_by_pattern", pattern, err)
	}
	return n
}

// Exists reports whether a live entry with the key is present.
func (s *Service) Exists(ctx context.Context, key string) bool {
	if !s.Enabled() {
		return false
	}
	exists, err := s.provider.Exists(ctx, key)
	if err != nil {
		s.onFailure("exists", key, err)
		return false
	}
	return exists
}

// Size returns the number of live entries. It's 0 when caching is disabled or the provider fails.
func (s *Service) Size(ctx context.Context) int64 {
	if !s.Enabled() {
		return 0
	}
	n, err := s.provider.Size(ctx)
	if err != nil {
		s.onFailure("size", "", err)
		return 0
	}
	return n
}

// Clear removes all entries of the cache.
func (s *Service) Clear(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.provider.Clear(ctx); err != nil {
		s.onFailure("clear", "", err)
	}
}

// Shutdown stops async operations and closes the provider if it needs that.
func (s *Service) Shutdown() error {
	err := s.async.Stop(s.stopTO)
	if closer, ok := s.provider.(interface{ Close() error }); ok {
		if closeErr := closer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (s *Service) onFailure(op string, key string, err error) {
	fields := []log.Field{log.String("operation", op), log.String("provider", s.provider.Name()), log.Error(err)}
	if key != "" {
		fields = append(fields, log.String("key", key))
	}
	s.logger.Warn("cache operation failed", fields...)
}

// Get reads the value of type T. It returns the zero value and false on a miss.
func Get[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var v T
	if !s.Get(ctx, key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

// Lookup reads the value of type T and describes the outcome.
func Lookup[T any](ctx context.Context, s *Service, key string) Result[T] {
	v, hit := Get[T](ctx, s, key)
	return Result[T]{Key: key, Value: v, Hit: hit, Source: s.ProviderName()}
}

// GetAsync reads the value of type T off the calling goroutine.
func GetAsync[T any](ctx context.Context, s *Service, key string) *Future[T] {
	return RunAsync(ctx, s.async, func(ctx context.Context) (T, bool, error) {
		var v T
		found, err := s.get(ctx, key, &v)
		if !found {
			var zero T
			return zero, false, err
		}
		return v, true, nil
	})
}

// LoadFunc loads a value which is missing in the cache.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// GetOrLoad returns the cached value or loads it with load and puts it with ttl (non-positive means the default TTL).
// Concurrent loads of the same key are merged into one call.
// Error of load is returned as is and nothing is cached in this case.
func GetOrLoad[T any](ctx context.Context, s *Service, key string, ttl time.Duration, load LoadFunc[T]) (T, error) {
	if v, ok := Get[T](ctx, s, key); ok {
		return v, nil
	}
	loaded, err, _ := s.loads.Do(key, func() (interface{}, error) {
		v, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		_ = s.put(ctx, key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := loaded.(T)
	return v, nil
}

// EvictAfter calls fn and evicts the keys if it succeeds. With allEntries the whole cache is evicted instead.
func EvictAfter(ctx context.Context, s *Service, allEntries bool, fn func(ctx context.Context) error, keys ...string) error {
	if err := fn(ctx); err != nil {
		return err
	}
	if allEntries {
		s.EvictAll(ctx)
		return nil
	}
	for _, key := range keys {
		s.Evict(ctx, key)
	}
	return nil
}
