package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// redisKey holds the sorted set of admission timestamps shared by all
// processes using the same API key.
const redisKey = "epa:rate_limit:window"

// Sorted-set sliding window. Scores and members are microsecond timestamps;
// a per-window sequence number keeps concurrent members unique.
//
// Keys: [1] window key
// Args: [1] max admissions, [2] now (microseconds), [3] window (microseconds)
// Returns: {allowed, wait_microseconds}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, 0, now - window)

local count = redis.call("ZCARD", key)
if count < max then
    local seq = redis.call("INCR", key .. ":seq")
    redis.call("ZADD", key, now, now .. "-" .. seq)
    redis.call("PEXPIRE", key, math.ceil(window / 1000) * 2)
    redis.call("PEXPIRE", key .. ":seq", math.ceil(window / 1000) * 2)
    return {1, 0}
end

local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
local wait = window - (now - tonumber(oldest[2]))
if wait < 0 then
    wait = 0
end
return {0, wait}
`)

// RedisSlidingWindow enforces the same trailing-window invariant as
// SlidingWindow, but keeps the window in Redis so several processes sharing
// one API key also share the request budget.
type RedisSlidingWindow struct {
	client       *redis.Client
	maxPerSecond int
	logger       zerolog.Logger
}

// NewRedisSlidingWindow creates a Redis-backed limiter. The caller owns the
// Redis client and is responsible for closing it.
func NewRedisSlidingWindow(client *redis.Client, maxPerSecond int) *RedisSlidingWindow {
	if maxPerSecond < 1 {
		maxPerSecond = 1
	}
	return &RedisSlidingWindow{
		client:       client,
		maxPerSecond: maxPerSecond,
		logger:       log.With().Str("component", "redis-limiter").Logger(),
	}
}

// Acquire blocks until the shared window admits one more request. The
// admission check and the window mutation happen atomically inside a Lua
// script, so concurrent processes cannot race past the cap.
func (rl *RedisSlidingWindow) Acquire(ctx context.Context) error {
	start := time.Now()
	for {
		now := time.Now().UnixMicro()
		res, err := slidingWindowScript.Run(ctx, rl.client,
			[]string{redisKey},
			rl.maxPerSecond, now, window.Microseconds(),
		).Result()
		if err != nil {
			return fmt.Errorf("rate limit script: %w", err)
		}

		vals, ok := res.([]interface{})
		if !ok || len(vals) != 2 {
			return fmt.Errorf("rate limit script: unexpected response %v", res)
		}

		allowed, _ := vals[0].(int64)
		if allowed == 1 {
			admissionsTotal.WithLabelValues("redis").Inc()
			if waited := time.Since(start); waited > 0 {
				waitSeconds.WithLabelValues("redis").Observe(waited.Seconds())
			}
			return nil
		}

		waitMicros, _ := vals[1].(int64)
		sleepFor := time.Duration(waitMicros) * time.Microsecond
		if sleepFor < 5*time.Millisecond {
			// Keep a floor so expired-entry races do not spin hot.
			sleepFor = 5 * time.Millisecond
		}

		rl.logger.Debug().
			Dur("sleep", sleepFor).
			Msg("Shared window full, waiting for admission")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}
