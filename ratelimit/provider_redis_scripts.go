/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/go-redis/redis/v8"

// All scripts take current time and window in milliseconds, the limit, the consume flag ("1" or "0")
// and the request id, and return {allowed, remaining, total, timeUntilResetMs}.
// The request id is generated once per check, so a retried script finds its own record
// and reports the request as accepted without consuming the quota again.

// KEYS[1] - sorted set of accepted requests scored by their time, the request id is the member.
// ARGV: now, window, limit, consume, request id.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local consume = ARGV[4] == '1'

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if consume and redis.call('ZSCORE', key, ARGV[5]) then
	allowed = 1
elseif limit > 0 and count < limit then
	allowed = 1
	if consume then
		redis.call('ZADD', key, now, ARGV[5])
		redis.call('PEXPIRE', key, window)
		count = count + 1
	end
end

local reset = window
if count > 0 then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	reset = tonumber(oldest[2]) + window - now
	if reset < 0 then
		reset = 0
	end
end
local remaining = limit - count
if remaining < 0 then
	remaining = 0
end
return {allowed, remaining, count, reset}
`)

// KEYS[1] - hash with "tokens", "ts" (time of the last refill) and "last_id" (id of the last consuming request) fields.
// ARGV: now, window, limit, consume, request id.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local consume = ARGV[4] == '1'

if limit <= 0 then
	return {0, 0, 0, window}
end

local state = redis.call('HMGET', key, 'tokens', 'ts', 'last_id')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
local replay = consume and state[3] == ARGV[5]
if tokens == nil or last == nil then
	tokens = limit
	last = now
elseif now > last then
	tokens = math.min(limit, tokens + (now - last) * limit / window)
	last = now
end

local allowed = 0
if replay then
	allowed = 1
elseif tokens >= 1 then
	allowed = 1
	if consume then
		tokens = tokens - 1
		redis.call('HSET', key, 'last_id', ARGV[5])
	end
end
redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', last)
redis.call('PEXPIRE', key, window * 2)

local whole = math.floor(tokens)
local reset = 0
if tokens < limit then
	reset = math.ceil((whole + 1 - tokens) * window / limit)
end
return {allowed, whole, limit - whole, reset}
`)

// KEYS[1] - hash with "start" (window start), "count" (accepted requests) and "last_id" (id of the last consuming request) fields.
// ARGV: now, window, limit, consume, request id.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local consume = ARGV[4] == '1'

local start = now - (now % window)
local state = redis.call('HMGET', key, 'start', 'count', 'last_id')
local count = 0
if tonumber(state[1]) == start then
	count = tonumber(state[2]) or 0
end

local allowed = 0
if consume and state[3] == ARGV[5] then
	allowed = 1
elseif limit > 0 and count < limit then
	allowed = 1
	if consume then
		count = count + 1
		redis.call('HSET', key, 'start', start, 'count', count, 'last_id', ARGV[5])
		redis.call('PEXPIRE', key, start + window - now)
	end
end
local remaining = limit - count
if remaining < 0 then
	remaining = 0
end
return {allowed, remaining, count, start + window - now}
`)
