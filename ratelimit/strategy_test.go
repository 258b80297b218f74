/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

var testStartTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// newMockClock returns a mock clock set to now.
func newMockClock(now time.Time) *clock.Mock {
	clk := clock.NewMock()
	clk.Set(now)
	return clk
}

func TestSlidingWindow(t *testing.T) {
	req := Request{Key: "k", Limit: 3, Window: time.Minute, Strategy: StrategySlidingWindow}

	t.Run("bound inside any window", func(t *testing.T) {
		var state SlidingWindowState
		now := testStartTime
		accepted := make([]time.Time, 0)
		for i := 0; i < 100; i++ {
			var res Result
			var err error
			state, res, err = CheckSlidingWindow(state, now, req)
			require.NoError(t, err)
			if res.Allowed {
				accepted = append(accepted, now)
			}
			require.LessOrEqual(t, len(state.Timestamps), req.Limit)
			now = now.Add(7 * time.Second)
		}
		for i := range accepted {
			n := 0
			for j := i; j < len(accepted) && accepted[j].Sub(accepted[i]) < req.Window; j++ {
				n++
			}
			require.LessOrEqual(t, n, req.Limit)
		}
	})

	t.Run("result fields", func(t *testing.T) {
		var state SlidingWindowState
		state, res, err := CheckSlidingWindow(state, testStartTime, req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(2), res.Remaining)
		require.Equal(t, int64(1), res.Total)
		require.Equal(t, time.Minute, res.TimeUntilReset)
		require.Equal(t, StrategySlidingWindow, res.Strategy)

		state, _, _ = CheckSlidingWindow(state, testStartTime.Add(10*time.Second), req)
		state, _, _ = CheckSlidingWindow(state, testStartTime.Add(20*time.Second), req)
		state, res, err = CheckSlidingWindow(state, testStartTime.Add(30*time.Second), req)
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, int64(0), res.Remaining)
		require.Equal(t, int64(3), res.Total)
		require.Equal(t, 30*time.Second, res.TimeUntilReset)
		require.Equal(t, 30*time.Second, res.RetryAfter())

		// The oldest request leaves the window exactly at its time + window.
		state, res, err = CheckSlidingWindow(state, testStartTime.Add(time.Minute), req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Len(t, state.Timestamps, 3)
	})

	t.Run("peek doesn't record", func(t *testing.T) {
		state, _, err := CheckSlidingWindow(SlidingWindowState{}, testStartTime, req)
		require.NoError(t, err)
		peeked, res, err := PeekSlidingWindow(state, testStartTime.Add(time.Second), req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(2), res.Remaining)
		require.Len(t, peeked.Timestamps, 1)
	})

	t.Run("zero limit always denies", func(t *testing.T) {
		_, res, err := CheckSlidingWindow(SlidingWindowState{}, testStartTime, Request{Key: "k", Window: time.Second})
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, int64(0), res.Remaining)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, _, err := CheckSlidingWindow(SlidingWindowState{}, testStartTime, Request{Key: "k", Limit: 1})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestTokenBucket(t *testing.T) {
	req := Request{Key: "k", Limit: 10, Window: 10 * time.Second, Strategy: StrategyTokenBucket}

	t.Run("burst and refill", func(t *testing.T) {
		var state TokenBucketState
		var res Result
		var err error
		for i := 0; i < 10; i++ {
			state, res, err = CheckTokenBucket(state, testStartTime, req)
			require.NoError(t, err)
			require.True(t, res.Allowed, "request %d", i)
			require.Equal(t, int64(9-i), res.Remaining)
		}
		state, res, err = CheckTokenBucket(state, testStartTime, req)
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, int64(0), res.Remaining)
		require.Equal(t, int64(10), res.Total)
		require.Equal(t, time.Second, res.TimeUntilReset)

		// One token per second.
		state, res, err = CheckTokenBucket(state, testStartTime.Add(500*time.Millisecond), req)
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, 500*time.Millisecond, res.TimeUntilReset)

		state, res, err = CheckTokenBucket(state, testStartTime.Add(time.Second), req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(0), res.Remaining)

		// Never more than the limit.
		state, res, err = CheckTokenBucket(state, testStartTime.Add(time.Hour), req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(9), res.Remaining)
		require.InDelta(t, 9.0, state.Tokens, 1e-9)
	})

	t.Run("tokens never negative", func(t *testing.T) {
		var state TokenBucketState
		for i := 0; i < 50; i++ {
			state, _, _ = CheckTokenBucket(state, testStartTime.Add(time.Duration(i)*100*time.Millisecond), req)
			require.GreaterOrEqual(t, state.Tokens, 0.0)
			require.LessOrEqual(t, state.Tokens, float64(req.Limit))
		}
	})

	t.Run("peek doesn't take a token", func(t *testing.T) {
		state, res, err := PeekTokenBucket(TokenBucketState{}, testStartTime, req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(10), res.Remaining)
		require.Equal(t, time.Duration(0), res.TimeUntilReset)
		require.InDelta(t, 10.0, state.Tokens, 1e-9)
	})

	t.Run("zero limit always denies", func(t *testing.T) {
		_, res, err := CheckTokenBucket(TokenBucketState{}, testStartTime, Request{Key: "k", Window: time.Second})
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, time.Second, res.TimeUntilReset)
	})
}

func TestFixedWindow(t *testing.T) {
	req := Request{Key: "k", Limit: 5, Window: time.Minute, Strategy: StrategyFixedWindow}

	t.Run("limit per window and reset on boundary", func(t *testing.T) {
		var state FixedWindowState
		var res Result
		var err error
		now := testStartTime.Add(10 * time.Second)
		for i := 0; i < 5; i++ {
			state, res, err = CheckFixedWindow(state, now, req)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}
		state, res, err = CheckFixedWindow(state, now, req)
		require.NoError(t, err)
		require.False(t, res.Allowed)
		require.Equal(t, int64(5), state.Count, "denied requests are not counted")
		require.Equal(t, testStartTime.Add(time.Minute), res.ResetTime.UTC())
		require.Equal(t, 50*time.Second, res.TimeUntilReset)

		state, res, err = CheckFixedWindow(state, testStartTime.Add(time.Minute), req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(1), res.Total)
		require.Equal(t, int64(4), res.Remaining)
		require.Equal(t, testStartTime.Add(time.Minute), state.WindowStart.UTC())
	})

	t.Run("peek", func(t *testing.T) {
		state, _, _ := CheckFixedWindow(FixedWindowState{}, testStartTime, req)
		state, res, err := PeekFixedWindow(state, testStartTime, req)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.Equal(t, int64(1), state.Count)
		require.Equal(t, int64(4), res.Remaining)
	})
}

func TestAlignToWindow(t *testing.T) {
	require.Equal(t, testStartTime, alignToWindow(testStartTime.Add(59*time.Second), time.Minute).UTC())
	require.Equal(t, time.Unix(0, -10), alignToWindow(time.Unix(0, -3), 10))
}

func TestKeyStateRequestCount(t *testing.T) {
	state := &keyState{}
	slidingReq := Request{Key: "k", Limit: 10, Window: time.Minute, Strategy: StrategySlidingWindow}
	fixedReq := Request{Key: "k", Limit: 10, Window: time.Minute, Strategy: StrategyFixedWindow}
	for i := 0; i < 3; i++ {
		_, err := evaluate(state, testStartTime, slidingReq, true)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := evaluate(state, testStartTime, fixedReq, true)
		require.NoError(t, err)
	}
	_, err := evaluate(state, testStartTime, slidingReq, false)
	require.NoError(t, err)

	require.Equal(t, int64(5), state.requestCount(testStartTime.Add(time.Second)))
	require.Equal(t, int64(0), state.requestCount(testStartTime.Add(time.Minute)))

	_, err = evaluate(state, testStartTime, Request{Key: "k", Limit: 1, Window: time.Second, Strategy: "leaky"}, true)
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		errMsg string
	}{
		{"empty key", Request{Limit: 1, Window: time.Second, Strategy: StrategyFixedWindow}, "key cannot be empty"},
		{"zero limit", Request{Key: "k", Window: time.Second, Strategy: StrategyFixedWindow}, "limit should be > 0"},
		{"negative window", Request{Key: "k", Limit: 1, Window: -1, Strategy: StrategyFixedWindow}, "window should be > 0"},
		{"unknown strategy", Request{Key: "k", Limit: 1, Window: time.Second, Strategy: "leaky"}, `strategy "leaky" is unknown`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.req.Key, tt.req.Limit, tt.req.Window, tt.req.Strategy)
			require.ErrorIs(t, err, ErrInvalidRequest)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}

	req, err := NewRequest("k", 1, time.Second, StrategyTokenBucket)
	require.NoError(t, err)
	require.Equal(t, Request{Key: "k", Limit: 1, Window: time.Second, Strategy: StrategyTokenBucket}, req)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies() {
		parsed, err := ParseStrategy(" " + string(s) + " ")
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	parsed, err := ParseStrategy("Token-Bucket")
	require.NoError(t, err)
	require.Equal(t, StrategyTokenBucket, parsed)

	_, err = ParseStrategy("leaky-bucket")
	require.ErrorIs(t, err, ErrInvalidRequest)
}
