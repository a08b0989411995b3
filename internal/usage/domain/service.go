package domain

import (
	"context"
	"errors"
)

type RecordRequest struct {
	UserID       string         `json:"user_id"`
	Provider     string         `json:"provider"`
	ModelName    string         `json:"model_name"`
	InputTokens  int64          `json:"input_tokens"`
	OutputTokens int64          `json:"output_tokens"`
	Metadata     map[string]any `json:"metadata"`
}

// Recorder meters one completion: it prices the tokens and debits the cost
// together with the usage write.
type Recorder interface {
	Record(ctx context.Context, req RecordRequest) (*UsageRecord, error)
}

var (
	ErrInvalidUser        = errors.New("invalid_user")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrInvalidModelName   = errors.New("invalid_model_name")
	ErrInvalidTokens      = errors.New("invalid_tokens")
	ErrPricingUnavailable = errors.New("pricing_unavailable")
)
