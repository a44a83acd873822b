package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: ratelimit:{user_id}:messages, expiring with the window.

// fixedWindow increments the counter unless it already reached the limit.
// It returns {allowed, remaining, ttl seconds}.
var fixedWindow = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if current == 0 then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

type RateLimitConfig struct {
	MessageLimit  int
	MessageWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: time.Minute,
	}
}

type RateLimiter struct {
	client goredis.Scripter
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client goredis.Scripter, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config}
}

// AllowMessage checks and consumes one message send for userID.
func (r *RateLimiter) AllowMessage(ctx context.Context, userID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, MessageKey(userID), r.config.MessageLimit, r.config.MessageWindow)
}

func MessageKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s:messages", userID)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	result, err := fixedWindow.Run(ctx, r.client, []string{key}, limit, seconds).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return parseResult(result, limit)
}

func parseResult(result interface{}, limit int) (*RateLimitResult, error) {
	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result %v", result)
	}
	ints := make([]int64, 3)
	for i := range ints {
		v, ok := values[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit result %v", result)
		}
		ints[i] = v
	}
	return &RateLimitResult{
		Allowed:   ints[0] == 1,
		Remaining: int(ints[1]),
		ResetIn:   time.Duration(ints[2]) * time.Second,
		Limit:     limit,
	}, nil
}
