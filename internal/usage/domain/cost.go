package domain

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/pkg/money"
)

// Prices are quoted per 1000 tokens.
const priceUnitExponent = 3

// Rate is the per-1000-token price set applied to one completion.
type Rate struct {
	InputTokenPrice  decimal.Decimal
	OutputTokenPrice decimal.Decimal
	BasePrice        decimal.NullDecimal
}

// ComputeCost returns (in*inPrice + out*outPrice)/1000 + basePrice, rounded
// half-up to scale. Intermediate values are exact.
func ComputeCost(inputTokens, outputTokens int64, rate Rate, scale int32) decimal.Decimal {
	variable := decimal.NewFromInt(inputTokens).Mul(rate.InputTokenPrice).
		Add(decimal.NewFromInt(outputTokens).Mul(rate.OutputTokenPrice))

	cost := variable.Shift(-priceUnitExponent)
	if rate.BasePrice.Valid {
		cost = cost.Add(rate.BasePrice.Decimal)
	}
	return money.Round(cost, scale)
}
