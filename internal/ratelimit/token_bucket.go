package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrInvalidBucket = errors.New("invalid_rate_limit_bucket")
	ErrBadReply      = errors.New("invalid_rate_limit_reply")
)

// Refill is computed from the redis server clock so that all instances agree.
// Tokens are returned as a string; integer replies would drop the fraction.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now

local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), now}
`

// Bucket is a refill rate in tokens per second and a capacity.
type Bucket struct {
	Rate  float64
	Burst int
}

func (b Bucket) valid() bool {
	return b.Rate > 0 && b.Burst > 0
}

// ttl keeps idle buckets around for twice the time a full refill takes.
func (b Bucket) ttl() time.Duration {
	if !b.valid() {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(float64(b.Burst)/b.Rate*2))
	return time.Duration(seconds) * time.Second
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

// Take removes one token from the bucket at key if one is available.
func (t *TokenBucket) Take(ctx context.Context, key string, bucket Bucket) (*RateLimitResult, error) {
	denied := &RateLimitResult{Limit: bucket.Burst}
	if t == nil || t.client == nil {
		return denied, ErrNotConfigured
	}
	if key == "" || !bucket.valid() {
		return denied, ErrInvalidBucket
	}

	reply, err := t.script.Run(ctx, t.client, []string{key},
		bucket.Rate, bucket.Burst, bucket.ttl().Milliseconds(),
	).Slice()
	if err != nil {
		return denied, err
	}
	return parseReply(reply, bucket)
}

func parseReply(reply []any, bucket Bucket) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return &RateLimitResult{Limit: bucket.Burst}, ErrBadReply
	}
	allowed := replyFloat(reply[0]) == 1
	remaining := replyFloat(reply[1])
	now := time.UnixMilli(int64(replyFloat(reply[2])))

	var retryAfter time.Duration
	if !allowed {
		retryAfter = time.Duration((1 - remaining) / bucket.Rate * float64(time.Second))
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      bucket.Burst,
		Remaining:  int(math.Floor(remaining)),
		ResetTime:  now.Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}

func replyFloat(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
