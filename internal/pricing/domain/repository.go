package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *PricingRule) error
	// FindActive returns the active rules for a key, newest first.
	FindActive(ctx context.Context, db *gorm.DB, provider, modelName string) ([]PricingRule, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PricingRule, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]PricingRule, error)
	DeactivateKey(ctx context.Context, db *gorm.DB, provider, modelName string, at time.Time) (int64, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
}
