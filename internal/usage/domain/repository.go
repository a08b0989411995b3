package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Summary aggregates usage over a window.
type Summary struct {
	TotalRequests int64           `json:"total_requests"`
	InputTokens   int64           `json:"input_tokens"`
	OutputTokens  int64           `json:"output_tokens"`
	TotalTokens   int64           `json:"total_tokens"`
	TotalCost     decimal.Decimal `json:"total_cost"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	// List returns records created at or after since, newest first.
	List(ctx context.Context, db *gorm.DB, userID string, since time.Time, limit, offset int) ([]UsageRecord, error)
	Count(ctx context.Context, db *gorm.DB, userID string, since time.Time) (int64, error)
	Summarize(ctx context.Context, db *gorm.DB, userID string, since time.Time) (Summary, error)
}
