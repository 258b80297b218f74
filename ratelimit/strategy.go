/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"math"
	"time"
)

// SlidingWindowState is a per-key state of the sliding window strategy.
// Zero value means the key was never checked.
type SlidingWindowState struct {
	// Timestamps of accepted requests which are still inside the window, in order of acceptance.
	Timestamps []time.Time
}

// TokenBucketState is a per-key state of the token bucket strategy.
// Zero value means the key was never checked (the bucket is full).
type TokenBucketState struct {
	Tokens     float64
	LastRefill time.Time
}

// FixedWindowState is a per-key state of the fixed window strategy.
// Zero value means the key was never checked.
type FixedWindowState struct {
	WindowStart time.Time
	Count       int64
}

// CheckSlidingWindow checks the request against the sliding window state.
// Timestamps not later than now-window are dropped, the request is accepted (and now is recorded)
// if less than limit timestamps remain.
func CheckSlidingWindow(state SlidingWindowState, now time.Time, req Request) (SlidingWindowState, Result, error) {
	return slidingWindow(state, now, req, true)
}

// PeekSlidingWindow evaluates the sliding window state as CheckSlidingWindow does but doesn't record the request.
// Allowed in the result tells whether the next request would be accepted.
func PeekSlidingWindow(state SlidingWindowState, now time.Time, req Request) (SlidingWindowState, Result, error) {
	return slidingWindow(state, now, req, false)
}

func slidingWindow(state SlidingWindowState, now time.Time, req Request, consume bool) (SlidingWindowState, Result, error) {
	if err := checkWindow(req); err != nil {
		return state, Result{}, err
	}

	cutoff := now.Add(-req.Window)
	kept := make([]time.Time, 0, len(state.Timestamps)+1)
	for _, ts := range state.Timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	allowed := req.Limit > 0 && len(kept) < req.Limit
	if allowed && consume {
		kept = append(kept, now)
	}

	timeUntilReset := req.Window
	if len(kept) > 0 {
		oldest := kept[0]
		for _, ts := range kept[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		timeUntilReset = oldest.Add(req.Window).Sub(now)
		if timeUntilReset < 0 {
			timeUntilReset = 0
		}
	}

	return SlidingWindowState{Timestamps: kept}, Result{
		Allowed:        allowed,
		Remaining:      nonNegative(int64(req.Limit - len(kept))),
		Total:          int64(len(kept)),
		TimeUntilReset: timeUntilReset,
		ResetTime:      now.Add(timeUntilReset),
		Strategy:       StrategySlidingWindow,
		Limit:          req.Limit,
		Window:         req.Window,
	}, nil
}

// CheckTokenBucket checks the request against the token bucket state.
// A new bucket is full. Tokens are refilled at the rate of limit per window and never exceed the limit,
// the request is accepted (and takes one token) if at least one whole token is available,
// so the balance never goes negative.
func CheckTokenBucket(state TokenBucketState, now time.Time, req Request) (TokenBucketState, Result, error) {
	return tokenBucket(state, now, req, true)
}

// PeekTokenBucket evaluates the token bucket state as CheckTokenBucket does but doesn't take a token.
func PeekTokenBucket(state TokenBucketState, now time.Time, req Request) (TokenBucketState, Result, error) {
	return tokenBucket(state, now, req, false)
}

func tokenBucket(state TokenBucketState, now time.Time, req Request, consume bool) (TokenBucketState, Result, error) {
	if err := checkWindow(req); err != nil {
		return state, Result{}, err
	}

	result := Result{Strategy: StrategyTokenBucket, Limit: req.Limit, Window: req.Window}
	if req.Limit <= 0 {
		result.TimeUntilReset = req.Window
		result.ResetTime = now.Add(req.Window)
		return TokenBucketState{LastRefill: now}, result, nil
	}

	limit := float64(req.Limit)
	if state.LastRefill.IsZero() {
		state = TokenBucketState{Tokens: limit, LastRefill: now}
	} else if elapsed := now.Sub(state.LastRefill); elapsed > 0 {
		state.Tokens = math.Min(limit, state.Tokens+float64(elapsed)*limit/float64(req.Window))
		state.LastRefill = now
	}

	result.Allowed = state.Tokens >= 1
	if result.Allowed && consume {
		state.Tokens--
	}

	whole := math.Floor(state.Tokens)
	result.Remaining = int64(whole)
	result.Total = int64(req.Limit) - result.Remaining
	if state.Tokens < limit {
		// Time to accumulate the next whole token.
		need := whole + 1 - state.Tokens
		result.TimeUntilReset = time.Duration(math.Ceil(need * float64(req.Window) / limit))
	}
	result.ResetTime = now.Add(result.TimeUntilReset)
	return state, result, nil
}

// CheckFixedWindow checks the request against the fixed window state.
// Windows are aligned to multiples of the window size since the Unix epoch. The counter is reset when a new window starts,
// the request is accepted if the counter stays within the limit. Denied requests are not counted.
func CheckFixedWindow(state FixedWindowState, now time.Time, req Request) (FixedWindowState, Result, error) {
	return fixedWindow(state, now, req, true)
}

// PeekFixedWindow evaluates the fixed window state as CheckFixedWindow does but doesn't count the request.
func PeekFixedWindow(state FixedWindowState, now time.Time, req Request) (FixedWindowState, Result, error) {
	return fixedWindow(state, now, req, false)
}

func fixedWindow(state FixedWindowState, now time.Time, req Request, consume bool) (FixedWindowState, Result, error) {
	if err := checkWindow(req); err != nil {
		return state, Result{}, err
	}

	windowStart := alignToWindow(now, req.Window)
	if !state.WindowStart.Equal(windowStart) {
		state = FixedWindowState{WindowStart: windowStart}
	}

	allowed := req.Limit > 0 && state.Count < int64(req.Limit)
	if allowed && consume {
		state.Count++
	}

	resetTime := windowStart.Add(req.Window)
	return state, Result{
		Allowed:        allowed,
		Remaining:      nonNegative(int64(req.Limit) - state.Count),
		Total:          state.Count,
		TimeUntilReset: resetTime.Sub(now),
		ResetTime:      resetTime,
		Strategy:       StrategyFixedWindow,
		Limit:          req.Limit,
		Window:         req.Window,
	}, nil
}

// alignToWindow returns the start of the fixed window containing t.
func alignToWindow(t time.Time, window time.Duration) time.Time {
	ns := t.UnixNano()
	w := int64(window)
	start := ns - ns%w
	if ns%w < 0 {
		start -= w
	}
	return time.Unix(0, start)
}

func checkWindow(req Request) error {
	if req.Window <= 0 {
		return invalidRequestErr("window", "should be > 0, got %s", req.Window)
	}
	return nil
}

// evaluate dispatches the request to the strategy engine.
// State of the strategies not used by the request is left untouched.
func evaluate(state *keyState, now time.Time, req Request, consume bool) (Result, error) {
	var (
		result Result
		err    error
	)
	switch req.Strategy {
	case StrategySlidingWindow:
		var st SlidingWindowState
		if st, result, err = slidingWindow(state.sliding, now, req, consume); err == nil {
			state.sliding, state.slidingWindow = st, req.Window
		}
	case StrategyTokenBucket:
		var st TokenBucketState
		if st, result, err = tokenBucket(state.bucket, now, req, consume); err == nil {
			state.bucket = st
		}
	case StrategyFixedWindow:
		var st FixedWindowState
		if st, result, err = fixedWindow(state.fixed, now, req, consume); err == nil {
			state.fixed, state.fixedWindow = st, req.Window
		}
	default:
		return Result{}, invalidRequestErr("strategy", "%q is unknown", req.Strategy)
	}
	return result, err
}

// keyState combines states of all strategies for a single key, so the same key may be checked with different strategies.
type keyState struct {
	sliding       SlidingWindowState
	slidingWindow time.Duration
	bucket        TokenBucketState
	fixed         FixedWindowState
	fixedWindow   time.Duration
}

// requestCount returns the number of accepted requests which are still counted against the limits of the key:
// timestamps inside the last used sliding window plus the counter of the current fixed window.
func (s *keyState) requestCount(now time.Time) int64 {
	var n int64
	cutoff := now.Add(-s.slidingWindow)
	for _, ts := range s.sliding.Timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	if s.fixed.Count > 0 && now.Before(s.fixed.WindowStart.Add(s.fixedWindow)) {
		n += s.fixed.Count
	}
	return n
}
