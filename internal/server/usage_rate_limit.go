package server

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonUserRate        = "user-rate"
	rateLimitReasonUserConcurrency = "user-concurrency"
)

// UsageRecordRateLimit applies the per-user token bucket and the per-user
// recording lock. It is a no-op when no limiter is configured.
func (s *Server) UsageRecordRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		userID := userIDFromContext(c)
		if userID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.usageLimiter.AllowUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("usage record rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		setRateLimitHeaders(c, result)
		if !result.Allowed {
			denyUsageRecordRateLimit(c, endpoint, rateLimitReasonUserRate, result, s.obsMetrics)
			return
		}

		lockToken, locked, err := s.usageLimiter.TryLockUser(ctx, userID)
		if err != nil {
			logger.FromContext(ctx).Warn("usage record lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !locked {
			denyUsageRecordRateLimit(c, endpoint, rateLimitReasonUserConcurrency, nil, s.obsMetrics)
			return
		}
		defer func() {
			if err := s.usageLimiter.ReleaseUser(context.WithoutCancel(ctx), userID, lockToken); err != nil {
				logger.FromContext(ctx).Warn("usage record unlock failed", zap.Error(err))
			}
		}()

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func denyUsageRecordRateLimit(c *gin.Context, endpoint, reason string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("usage record rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)

	retryAfter := 1
	if result != nil && result.RetryAfter.Seconds() > 1 {
		retryAfter = int(result.RetryAfter.Seconds() + 0.5)
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(max(result.Remaining, 0)))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
