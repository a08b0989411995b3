package domain

import (
	"context"
	"errors"
)

// Resolver looks up the pricing rule in force for a model.
type Resolver interface {
	Resolve(ctx context.Context, provider, modelName string) (*PricingRule, error)
}

type Service interface {
	Resolver
	CreateRule(ctx context.Context, req CreateRuleRequest) (*PricingRule, error)
	ListActive(ctx context.Context) ([]PricingRule, error)
	Deactivate(ctx context.Context, id string) error
}

type CreateRuleRequest struct {
	Provider         string  `json:"provider" toml:"provider"`
	ModelName        string  `json:"model_name" toml:"model_name"`
	InputTokenPrice  string  `json:"input_token_price" toml:"input_token_price"`
	OutputTokenPrice string  `json:"output_token_price" toml:"output_token_price"`
	BasePrice        *string `json:"base_price,omitempty" toml:"base_price,omitempty"`
}

var (
	ErrPricingRuleNotFound = errors.New("pricing_rule_not_found")
	ErrInvalidProvider     = errors.New("invalid_provider")
	ErrInvalidModelName    = errors.New("invalid_model_name")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrInvalidID           = errors.New("invalid_id")
)
