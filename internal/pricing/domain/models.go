package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/pkg/money"
)

// Key columns are shared with usage_records.
const (
	MaxProviderLength  = 64
	MaxModelNameLength = 128
)

// PriceScale is the number of fractional digits stored on rule prices.
const PriceScale = money.DefaultScale

// PricingRule prices one (provider, model) pair. Token prices are per 1000 tokens.
type PricingRule struct {
	ID               snowflake.ID        `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider         string              `json:"provider" gorm:"type:varchar(64);not null;index:idx_pricing_rules_key"`
	ModelName        string              `json:"model_name" gorm:"type:varchar(128);not null;index:idx_pricing_rules_key"`
	InputTokenPrice  decimal.Decimal     `json:"input_token_price" gorm:"type:numeric(28,8);not null"`
	OutputTokenPrice decimal.Decimal     `json:"output_token_price" gorm:"type:numeric(28,8);not null"`
	BasePrice        decimal.NullDecimal `json:"base_price" gorm:"type:numeric(28,8)"`
	IsActive         bool                `json:"is_active" gorm:"not null;default:true;index:idx_pricing_rules_key"`
	CreatedAt        time.Time           `json:"created_at" gorm:"not null"`
	DeactivatedAt    *time.Time          `json:"deactivated_at,omitempty"`
}

func (PricingRule) TableName() string { return "pricing_rules" }

// NormalizeKey trims and lower-cases a provider or model name.
func NormalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
