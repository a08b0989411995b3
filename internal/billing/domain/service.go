package domain

import (
	"context"

	"github.com/shopspring/decimal"
	billingoverview "github.com/smallbiznis/creditledger/internal/billingoverview/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
)

// DefaultCreditDescription labels purchases submitted without a description.
const DefaultCreditDescription = "Credit purchase"

type AddCreditsRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Description string
}

type AdjustBalanceRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Description string
}

// Service is the single entry point used by the HTTP and CLI layers.
type Service interface {
	AddCredits(ctx context.Context, req AddCreditsRequest) (billingoverview.BillingInfo, error)
	GetInfo(ctx context.Context, userID string) (billingoverview.BillingInfo, error)
	ListUsage(ctx context.Context, req billingoverview.ListUsageRequest) (billingoverview.ListUsageResponse, error)
	RecordUsage(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.UsageRecord, error)
	ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (*ledgerdomain.ListTransactionsResponse, error)

	ListPricing(ctx context.Context) ([]pricingdomain.PricingRule, error)
	CreatePricingRule(ctx context.Context, req pricingdomain.CreateRuleRequest) (*pricingdomain.PricingRule, error)
	DeactivatePricingRule(ctx context.Context, id string) error

	AdjustBalance(ctx context.Context, req AdjustBalanceRequest) (billingoverview.BillingInfo, error)
	Reconcile(ctx context.Context, userID string) (*ledgerdomain.Reconciliation, error)
}
