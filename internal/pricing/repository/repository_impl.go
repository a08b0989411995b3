package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	"gorm.io/gorm"
)

const ruleColumns = `id, provider, model_name, input_token_price, output_token_price,
		 base_price, is_active, created_at, deactivated_at`

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *pricingdomain.PricingRule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO pricing_rules (
			id, provider, model_name, input_token_price, output_token_price,
			base_price, is_active, created_at, deactivated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.Provider,
		rule.ModelName,
		rule.InputTokenPrice,
		rule.OutputTokenPrice,
		rule.BasePrice,
		rule.IsActive,
		rule.CreatedAt,
		rule.DeactivatedAt,
	).Error
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, provider, modelName string) ([]pricingdomain.PricingRule, error) {
	var rules []pricingdomain.PricingRule
	err := db.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+`
		 FROM pricing_rules
		 WHERE provider = ? AND model_name = ? AND is_active = ?
		 ORDER BY created_at DESC, id DESC`,
		provider,
		modelName,
		true,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*pricingdomain.PricingRule, error) {
	var rule pricingdomain.PricingRule
	err := db.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+` FROM pricing_rules WHERE id = ?`,
		id,
	).Scan(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]pricingdomain.PricingRule, error) {
	var rules []pricingdomain.PricingRule
	err := db.WithContext(ctx).Raw(
		`SELECT `+ruleColumns+`
		 FROM pricing_rules
		 WHERE is_active = ?
		 ORDER BY provider ASC, model_name ASC, created_at DESC, id DESC`,
		true,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) DeactivateKey(ctx context.Context, db *gorm.DB, provider, modelName string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pricing_rules SET is_active = ?, deactivated_at = ?
		 WHERE provider = ? AND model_name = ? AND is_active = ?`,
		false,
		at,
		provider,
		modelName,
		true,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE pricing_rules SET is_active = ?, deactivated_at = ?
		 WHERE id = ? AND is_active = ?`,
		false,
		at,
		id,
		true,
	)
	return res.RowsAffected, res.Error
}
