package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
)

// PricingFile is the TOML document listing pricing rules:
//
//	[[rule]]
//	provider = "openai"
//	model_name = "gpt-4o"
//	input_token_price = "0.005"
//	output_token_price = "0.015"
type PricingFile struct {
	Rules []pricingdomain.CreateRuleRequest `toml:"rule"`
}

type Result struct {
	Created   int `json:"created"`
	Unchanged int `json:"unchanged"`
}

func LoadPricingFile(path string) (PricingFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return PricingFile{}, fmt.Errorf("read pricing seed: %w", err)
	}
	return ParsePricing(raw)
}

func ParsePricing(raw []byte) (PricingFile, error) {
	var file PricingFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return PricingFile{}, fmt.Errorf("parse pricing seed: %w", err)
	}
	return file, nil
}

// ApplyPricing creates each rule unless an identical rule is already active,
// so the same file can be applied on every start.
func ApplyPricing(ctx context.Context, svc pricingdomain.Service, file PricingFile) (Result, error) {
	var result Result
	for i, req := range file.Rules {
		current, err := svc.Resolve(ctx, req.Provider, req.ModelName)
		switch {
		case err == nil:
			if sameRule(current, req) {
				result.Unchanged++
				continue
			}
		case errors.Is(err, pricingdomain.ErrPricingRuleNotFound):
		default:
			return result, fmt.Errorf("rule %d: %w", i+1, err)
		}

		if _, err := svc.CreateRule(ctx, req); err != nil {
			return result, fmt.Errorf("rule %d (%s/%s): %w", i+1, req.Provider, req.ModelName, err)
		}
		result.Created++
	}
	return result, nil
}

func sameRule(current *pricingdomain.PricingRule, req pricingdomain.CreateRuleRequest) bool {
	if !decimalEquals(current.InputTokenPrice, req.InputTokenPrice) ||
		!decimalEquals(current.OutputTokenPrice, req.OutputTokenPrice) {
		return false
	}
	wantBase := req.BasePrice != nil && strings.TrimSpace(*req.BasePrice) != ""
	if wantBase != current.BasePrice.Valid {
		return false
	}
	return !wantBase || decimalEquals(current.BasePrice.Decimal, *req.BasePrice)
}

func decimalEquals(have decimal.Decimal, raw string) bool {
	want, err := decimal.NewFromString(strings.TrimSpace(raw))
	return err == nil && have.Equal(want)
}
