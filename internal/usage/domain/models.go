package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageStatus records how a usage record was settled.
type UsageStatus string

const (
	// StatusCharged means the cost was debited from the user's credits.
	StatusCharged UsageStatus = "charged"
	// StatusUncollectible means the debit was refused and the cost was written off.
	StatusUncollectible UsageStatus = "uncollectible"
	// StatusFree means the computed cost was zero and nothing was posted.
	StatusFree UsageStatus = "free"
)

// UsageRecord is one metered completion. Immutable once written.
type UsageRecord struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UserID        string            `json:"user_id" gorm:"type:varchar(191);not null;index:idx_usage_records_user_created,priority:1"`
	Provider      string            `json:"provider" gorm:"type:varchar(64);not null"`
	ModelName     string            `json:"model_name" gorm:"type:varchar(128);not null"`
	InputTokens   int64             `json:"input_tokens" gorm:"not null"`
	OutputTokens  int64             `json:"output_tokens" gorm:"not null"`
	TotalTokens   int64             `json:"total_tokens" gorm:"not null"`
	TotalCost     decimal.Decimal   `json:"total_cost" gorm:"type:numeric(28,8);not null"`
	PricingRuleID *snowflake.ID     `json:"pricing_rule_id,omitempty" gorm:"index"`
	Status        UsageStatus       `json:"status" gorm:"type:varchar(32);not null"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;index:idx_usage_records_user_created,priority:2"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
