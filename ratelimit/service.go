/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/acronis/go-resourcekit/log"
)

// DefaultFailureLogInterval is a minimal interval between two error logs about provider failures.
const DefaultFailureLogInterval = 10 * time.Second

// ServiceOpts represents options for Service.
type ServiceOpts struct {
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
	Clock            clock.Clock
	// FailureLogInterval limits logging of provider failures, DefaultFailureLogInterval is used if zero.
	// Suppressed failures are logged at the debug level.
	FailureLogInterval time.Duration
}

// LimitOpts overrides parameters of the default limit. Zero values are replaced with the configured defaults.
type LimitOpts struct {
	Limit    int
	Window   time.Duration
	Strategy Strategy
}

// Service applies the configured policy on top of a Provider.
//
// When rate limiting is disabled, every check is allowed with a neutral result and the provider is never called.
// When the provider fails, the request is allowed (fail-open, Config.SkipOnFailure) or denied (fail-closed)
// and the failure is logged and counted.
type Service struct {
	provider  Provider
	cfg       Config
	enabled   atomic.Bool
	failOpen  bool
	logger    log.FieldLogger
	metrics   MetricsCollector
	clock     clock.Clock
	errLogLim *rate.Sometimes
	endpoints *endpointMatcher
}

// NewService creates a new Service. Provider may be nil only if rate limiting is disabled.
func NewService(provider Provider, cfg *Config, opts ServiceOpts) (*Service, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if provider == nil && cfg.Enabled {
		return nil, fmt.Errorf("%w: provider is required when rate limiting is enabled", ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.FailureLogInterval == 0 {
		opts.FailureLogInterval = DefaultFailureLogInterval
	}
	cfgCopy := *cfg
	if cfgCopy.DefaultLimit == 0 {
		cfgCopy.DefaultLimit = DefaultLimit
	}
	if cfgCopy.DefaultWindow == 0 {
		cfgCopy.DefaultWindow = DefaultWindow
	}
	if cfgCopy.DefaultStrategy == "" {
		cfgCopy.DefaultStrategy = DefaultStrategy
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	s := &Service{
		provider:  provider,
		cfg:       cfgCopy,
		failOpen:  cfg.SkipOnFailure,
		logger:    opts.Logger,
		metrics:   opts.MetricsCollector,
		clock:     opts.Clock,
		errLogLim: &rate.Sometimes{First: 1, Interval: opts.FailureLogInterval},
		endpoints: newEndpointMatcher(cfg.Endpoints),
	}
	s.enabled.Store(cfg.Enabled)
	return s, nil
}

// Enabled reports whether rate limiting is enabled.
func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled switches rate limiting on or off at runtime. It cannot be switched on if the service has no provider.
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

// CheckRateLimit checks the request and records it if it's accepted.
// Error is returned only for an invalid request (it wraps ErrInvalidRequest), provider failures are handled by the policy.
// An explicitly built request is validated even if rate limiting is disabled.
// Key-based methods (IsAllowed, RequestFor, RemainingRequests) don't validate anything when it's disabled.
func (s *Service) CheckRateLimit(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if !s.Enabled() {
		s.metrics.IncChecks(req.Strategy, OutcomeDisabled)
		return neutralResult(req, s.clock.Now()), nil
	}

	result, err := s.provider.CheckRateLimit(ctx, req)
	if err != nil {
		return s.onCheckFailure(req, err), nil
	}
	if result.Allowed {
		s.metrics.IncChecks(req.Strategy, OutcomeAllowed)
	} else {
		s.metrics.IncChecks(req.Strategy, OutcomeDenied)
		s.logger.Debug("rate limit exceeded", log.String("key", req.Key),
			log.String("strategy", string(req.Strategy)), log.Duration("retry_after", result.TimeUntilReset))
	}
	return result, nil
}

// Enforce checks the request and returns *ExceededError if it's denied.
func (s *Service) Enforce(ctx context.Context, req Request) error {
	result, err := s.CheckRateLimit(ctx, req)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &ExceededError{Result: result}
	}
	return nil
}

// IsAllowed checks the key against the default limit.
// Invalid key (empty) is never allowed while rate limiting is enabled, everything is allowed when it's disabled.
func (s *Service) IsAllowed(ctx context.Context, key string) bool {
	allowed, err := s.IsAllowedWithOpts(ctx, key, LimitOpts{})
	if err != nil {
		s.logger.Warn("invalid rate limit request", log.String("key", key), log.Error(err))
		return false
	}
	return allowed
}

// IsAllowedWithOpts checks the key against the default limit overridden with opts.
func (s *Service) IsAllowedWithOpts(ctx context.Context, key string, opts LimitOpts) (bool, error) {
	req := s.defaultRequest(key, opts)
	if !s.Enabled() {
		s.metrics.IncChecks(req.Strategy, OutcomeDisabled)
		return true, nil
	}
	result, err := s.CheckRateLimit(ctx, req)
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// ResetRateLimit removes all state of the key. Failures are logged.
func (s *Service) ResetRateLimit(ctx context.Context, key string) {
	if !s.Enabled() {
		return
	}
	if err := s.provider.ResetRateLimit(ctx, key); err != nil {
		s.onFailure("reset", err, log.String("key", key))
		return
	}
	s.logger.Debug("rate limit reset", log.String("key", key))
}

// ClearAll removes state of all keys. Failures are logged.
func (s *Service) ClearAll(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.provider.ClearAll(ctx); err != nil {
		s.onFailure("clear", err)
		return
	}
	s.logger.Info("all rate limits cleared")
}

// RequestCount returns the number of accepted requests currently counted for the key.
// Zero is returned when rate limiting is disabled or the provider fails.
func (s *Service) RequestCount(ctx context.Context, key string) int64 {
	if !s.Enabled() {
		return 0
	}
	n, err := s.provider.RequestCount(ctx, key)
	if err != nil {
		s.onFailure("count", err, log.String("key", key))
		return 0
	}
	return n
}

// RemainingRequests returns the number of requests the key may still make under the default limit.
// The query doesn't consume the quota.
func (s *Service) RemainingRequests(ctx context.Context, key string) int64 {
	result, ok := s.peek(ctx, key)
	if !ok {
		if s.failOpen {
			return int64(s.cfg.DefaultLimit)
		}
		return 0
	}
	return result.Remaining
}

// TimeUntilReset returns the time after which the default limit of the key is (partially) restored.
// The query doesn't consume the quota.
func (s *Service) TimeUntilReset(ctx context.Context, key string) time.Duration {
	result, ok := s.peek(ctx, key)
	if !ok {
		if s.failOpen {
			return 0
		}
		return s.cfg.DefaultWindow
	}
	return result.TimeUntilReset
}

func (s *Service) peek(ctx context.Context, key string) (Result, bool) {
	req := s.defaultRequest(key, LimitOpts{})
	if !s.Enabled() {
		return neutralResult(req, s.clock.Now()), true
	}
	if err := req.Validate(); err != nil {
		s.logger.Warn("invalid rate limit request", log.String("key", key), log.Error(err))
		return Result{}, false
	}
	result, err := s.provider.PeekRateLimit(ctx, req)
	if err != nil {
		s.onFailure("peek", err, log.String("key", key))
		return Result{}, false
	}
	return result, true
}

// RequestFor builds a request for the key taking endpoint and user type overrides into account.
// The most specific limit wins: endpoint user type limit, endpoint limit, user type limit, default limit.
// The returned bypass flag is true when rate limiting of the endpoint or of the whole service is switched off.
func (s *Service) RequestFor(key, endpoint, userType string) (req Request, bypass bool, err error) {
	if !s.Enabled() {
		return Request{}, true, nil
	}
	opts := LimitOpts{}
	userType = strings.ToLower(userType)
	if userType != "" {
		if ut, ok := s.cfg.UserTypes[userType]; ok {
			opts.Limit, opts.Window = ut.Limit, ut.Window
		}
	}
	if endpoint != "" {
		if ep, ok := s.endpoints.find(endpoint); ok {
			if !ep.IsEnabled() {
				return Request{}, true, nil
			}
			opts.Strategy = ep.Strategy
			if ep.Limit > 0 {
				opts.Limit = ep.Limit
			}
			if ep.Window > 0 {
				opts.Window = ep.Window
			}
			if ut, ok := ep.UserTypeLimits[userType]; ok && userType != "" {
				if ut.Limit > 0 {
					opts.Limit = ut.Limit
				}
				if ut.Window > 0 {
					opts.Window = ut.Window
				}
			}
		}
	}
	req = s.defaultRequest(key, opts)
	if err = req.Validate(); err != nil {
		return Request{}, false, err
	}
	return req, false, nil
}

// Shutdown shuts down the underlying provider.
func (s *Service) Shutdown() error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown()
}

func (s *Service) defaultRequest(key string, opts LimitOpts) Request {
	req := Request{Key: key, Limit: opts.Limit, Window: opts.Window, Strategy: opts.Strategy}
	if req.Limit == 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Window == 0 {
		req.Window = s.cfg.DefaultWindow
	}
	if req.Strategy == "" {
		req.Strategy = s.cfg.DefaultStrategy
	}
	return req
}

func (s *Service) onCheckFailure(req Request, err error) Result {
	now := s.clock.Now()
	if s.failOpen {
		s.metrics.IncChecks(req.Strategy, OutcomeFailOpen)
		s.onFailure("check", err, log.String("key", req.Key), log.String("policy", "fail-open"))
		return neutralResult(req, now)
	}
	s.metrics.IncChecks(req.Strategy, OutcomeFailClosed)
	s.onFailure("check", err, log.String("key", req.Key), log.String("policy", "fail-closed"))
	return failClosedResult(req, now)
}

func (s *Service) onFailure(operation string, err error, fields ...log.Field) {
	s.metrics.IncProviderErrors(s.provider.Name(), operation)
	fields = append(fields, log.String("provider", s.provider.Name()), log.String("operation", operation), log.Error(err))
	logged := false
	s.errLogLim.Do(func() {
		logged = true
		s.logger.Error("rate limit provider failed", fields...)
	})
	if !logged {
		s.logger.Debug("rate limit provider failed", fields...)
	}
}
