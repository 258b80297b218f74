/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"strings"
	"time"
)

// Strategy is a rate limiting algorithm.
type Strategy string

// Supported strategies.
const (
	StrategySlidingWindow Strategy = "sliding-window"
	StrategyTokenBucket   Strategy = "token-bucket"
	StrategyFixedWindow   Strategy = "fixed-window"
)

// Strategies returns all supported strategies.
func Strategies() []Strategy {
	return []Strategy{StrategySlidingWindow, StrategyTokenBucket, StrategyFixedWindow}
}

// ParseStrategy parses strategy name case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", invalidRequestErr("strategy", "%q is unknown", s)
	}
	return st, nil
}

// IsValid reports whether the strategy is supported.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategySlidingWindow, StrategyTokenBucket, StrategyFixedWindow:
		return true
	}
	return false
}

// Request describes a single rate limit check: at most Limit requests per Window for the Key.
type Request struct {
	Key      string
	Limit    int
	Window   time.Duration
	Strategy Strategy
}

// NewRequest creates a new validated Request.
func NewRequest(key string, limit int, window time.Duration, strategy Strategy) (Request, error) {
	req := Request{Key: key, Limit: limit, Window: window, Strategy: strategy}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks the request parameters. The returned error wraps ErrInvalidRequest.
func (r Request) Validate() error {
	if r.Key == "" {
		return invalidRequestErr("key", "cannot be empty")
	}
	if r.Limit <= 0 {
		return invalidRequestErr("limit", "should be > 0, got %d", r.Limit)
	}
	if r.Window <= 0 {
		return invalidRequestErr("window", "should be > 0, got %s", r.Window)
	}
	if !r.Strategy.IsValid() {
		return invalidRequestErr("strategy", "%q is unknown", r.Strategy)
	}
	return nil
}

// Result is an outcome of a rate limit check. It's returned by value and never mutated after that.
type Result struct {
	Allowed bool
	// Remaining is the number of requests which still may be accepted, it's never negative.
	Remaining int64
	// Total is the number of accepted requests which are currently counted against the limit.
	Total          int64
	TimeUntilReset time.Duration
	ResetTime      time.Time
	Strategy       Strategy
	Limit          int
	Window         time.Duration
}

// RetryAfter returns the delay after which a denied request may be retried.
func (r Result) RetryAfter() time.Duration {
	if r.Allowed || r.TimeUntilReset < 0 {
		return 0
	}
	return r.TimeUntilReset
}

// neutralResult is returned when the limit is not enforced (rate limiting is disabled, fail-open on backend failure).
func neutralResult(req Request, now time.Time) Result {
	return Result{
		Allowed:   true,
		Remaining: nonNegative(int64(req.Limit)),
		ResetTime: now,
		Strategy:  req.Strategy,
		Limit:     req.Limit,
		Window:    req.Window,
	}
}

// failClosedResult is returned on backend failure when the fail-closed policy is configured.
func failClosedResult(req Request, now time.Time) Result {
	return Result{
		Allowed:        false,
		TimeUntilReset: req.Window,
		ResetTime:      now.Add(req.Window),
		Strategy:       req.Strategy,
		Limit:          req.Limit,
		Window:         req.Window,
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
