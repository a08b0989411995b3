package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyUsageRecordUser = "usage:record:user:%s"
	keyUsageRecordLock = "usage:record:lock:%s"
)

// UsageRecordLimiter throttles usage recording per user. It protects the
// ledger from hot accounts; correctness does not depend on it.
type UsageRecordLimiter struct {
	enabled bool

	client *redis.Client
	bucket *TokenBucket
	locker *Locker

	userBucket Bucket
	lockTTL    time.Duration
}

// NewUsageRecordLimiter returns nil when rate limiting is disabled.
func NewUsageRecordLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*UsageRecordLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.UsageRecordUserRate <= 0 || limitCfg.UsageRecordUserBurst <= 0 {
		return nil, errors.New("usage record user rate limit must be positive")
	}
	if limitCfg.UsageRecordConcurrencyTTLSeconds <= 0 {
		return nil, errors.New("usage record lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("rate limit redis unreachable", zap.String("addr", addr), zap.Error(err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}

	return &UsageRecordLimiter{
		enabled:    true,
		client:     client,
		bucket:     NewTokenBucket(client),
		locker:     NewLocker(client),
		userBucket: Bucket{
			Rate:  limitCfg.UsageRecordUserRate,
			Burst: limitCfg.UsageRecordUserBurst,
		},
		lockTTL: time.Duration(limitCfg.UsageRecordConcurrencyTTLSeconds) * time.Second,
	}, nil
}

func (l *UsageRecordLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UsageRecordLimiter) AllowUser(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, userKey(keyUsageRecordUser, userID), l.userBucket)
}

// TryLockUser serializes usage recording for one user across instances.
func (l *UsageRecordLimiter) TryLockUser(ctx context.Context, userID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	lease, ok, err := l.locker.Acquire(ctx, userKey(keyUsageRecordLock, userID), l.lockTTL)
	return lease.Token, ok, err
}

func (l *UsageRecordLimiter) ReleaseUser(ctx context.Context, userID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, Lease{Key: userKey(keyUsageRecordLock, userID), Token: token})
}

func userKey(format, userID string) string {
	return fmt.Sprintf(format, strings.TrimSpace(userID))
}
