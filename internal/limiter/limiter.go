// Package limiter implements Redis-backed request rate limiting.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Strategy is one rate limiting algorithm.
// key identifies the caller, limit is the number of requests (or bucket
// capacity) allowed per window.
type Strategy interface {
	Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error)
}

type Manager struct {
	rdb      *redis.Client
	strategy Strategy
}

func NewManager(rdb *redis.Client, strategy Strategy) *Manager {
	return &Manager{
		rdb:      rdb,
		strategy: strategy,
	}
}

func (m *Manager) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return m.strategy.Allow(ctx, m.rdb, key, limit, window)
}

// FixedWindowStrategy counts requests in a window that starts with the first request.
type FixedWindowStrategy struct{}

const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
	return 0
end
return 1
`

func (s *FixedWindowStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	result, err := rdb.Eval(ctx, fixedWindowScript, []string{key}, limit, window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("fixed window %s: %w", key, err)
	}
	return result == 1, nil
}

// TokenBucketStrategy refills limit tokens per window, never above limit.
type TokenBucketStrategy struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

const tokenBucketScript = `
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local info = redis.call("HMGET", KEYS[1], "tokens", "last_time")
local tokens = tonumber(info[1])
local last_time = tonumber(info[2])
if tokens == nil then
	tokens = capacity
	last_time = now
end

local delta = math.max(0, now - last_time)
tokens = math.min(capacity, tokens + delta * rate)

if tokens < 1 then
	return 0
end
redis.call("HSET", KEYS[1], "tokens", tostring(tokens - 1), "last_time", tostring(now))
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`

func (s *TokenBucketStrategy) Allow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (bool, error) {
	rate := float64(limit) / window.Seconds()
	if rate <= 0 {
		rate = 1
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	seconds := float64(now().UnixMilli()) / 1000

	result, err := rdb.Eval(ctx, tokenBucketScript, []string{key}, limit, rate, seconds, (2 * window).Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("token bucket %s: %w", key, err)
	}
	return result == 1, nil
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string) (Strategy, error) {
	switch name {
	case "", "fixed_window":
		return &FixedWindowStrategy{}, nil
	case "token_bucket":
		return &TokenBucketStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit strategy %q", name)
	}
}
