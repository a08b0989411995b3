package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
)

// UsageStats sums a user's usage records over a trailing window.
type UsageStats struct {
	WindowDays        int             `json:"window_days"`
	RecordCount       int64           `json:"record_count"`
	TotalInputTokens  int64           `json:"total_input_tokens"`
	TotalOutputTokens int64           `json:"total_output_tokens"`
	TotalTokens       int64           `json:"total_tokens"`
	TotalCost         decimal.Decimal `json:"total_cost"`
}

type BillingInfo struct {
	UserID      string          `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	RecentUsage UsageStats      `json:"recent_usage"`
}

type ListUsageRequest struct {
	UserID     string
	WindowDays int
	Page       int
	Limit      int
}

type ListUsageResponse struct {
	Usage      []usagedomain.UsageRecord `json:"usage"`
	Summary    UsageStats                `json:"summary"`
	Pagination pagination.Pagination     `json:"pagination"`
}

// Service answers balance and usage history queries. All reads tolerate
// in-flight writes.
type Service interface {
	GetUserBillingInfo(ctx context.Context, userID string) (BillingInfo, error)
	GetUserUsageStats(ctx context.Context, userID string, windowDays int) (UsageStats, error)
	ListUsage(ctx context.Context, req ListUsageRequest) (ListUsageResponse, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidWindow = errors.New("invalid_window")
)
