package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultWindow is the sliding window applied to API-key admission.
const DefaultWindow = time.Hour

// Result reports the outcome of an admission check.
type Result struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Limiter is a sliding-window request counter keyed by caller identity.
//
// Implementations must be safe for concurrent use and must fail closed:
// when the backing store is unreachable, Check returns a denied Result
// alongside the error.
type Limiter interface {
	// Check atomically evicts expired entries, counts the window, and
	// records this request if it is under the limit.
	Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error)

	// Remaining reads the current budget without recording usage.
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// checkScript runs the evict/count/record sequence as one atomic unit so
// concurrent callers cannot race past the limit. Scores and the window are
// in milliseconds.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, 0}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, limit - count - 1}
`)

// RedisLimiter implements Limiter on a shared Redis sorted set per key.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "ratelimit:"}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	if limit <= 0 {
		return Result{}, nil
	}

	now := time.Now().UnixMilli()
	member := fmt.Sprintf("%d:%s", now, uuid.NewString())

	raw, err := checkScript.Run(ctx, l.client, []string{l.prefix + key},
		now, window.Milliseconds(), limit, member).Result()
	if err != nil {
		// Fail closed: an unreachable store denies admission.
		slog.Error("Rate limit check failed", "key", key, "error", err)
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit check: unexpected script reply %T", raw)
	}

	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	return Result{Allowed: allowed == 1, Remaining: int(remaining)}, nil
}

func (l *RedisLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	now := time.Now().UnixMilli()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, l.prefix+key, "0", fmt.Sprintf("%d", now-window.Milliseconds()))
	card := pipe.ZCard(ctx, l.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit remaining: %w", err)
	}

	remaining := limit - int(card.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

var _ Limiter = (*RedisLimiter)(nil)
