package service

import (
	"context"
	"strings"

	billingdomain "github.com/smallbiznis/creditledger/internal/billing/domain"
	billingoverview "github.com/smallbiznis/creditledger/internal/billingoverview/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Ledger   ledgerdomain.Service
	Pricing  pricingdomain.Service
	Usage    usagedomain.Recorder
	Overview billingoverview.Service
}

type Service struct {
	log      *zap.Logger
	ledger   ledgerdomain.Service
	pricing  pricingdomain.Service
	usage    usagedomain.Recorder
	overview billingoverview.Service
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		log:      p.Log.Named("billing.service"),
		ledger:   p.Ledger,
		pricing:  p.Pricing,
		usage:    p.Usage,
		overview: p.Overview,
	}
}

func (s *Service) AddCredits(ctx context.Context, req billingdomain.AddCreditsRequest) (billingoverview.BillingInfo, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = billingdomain.DefaultCreditDescription
	}
	balance, err := s.ledger.Credit(ctx, req.UserID, req.Amount, description)
	if err != nil {
		return billingoverview.BillingInfo{}, err
	}
	s.log.Info("credits added",
		zap.String("user_id", strings.TrimSpace(req.UserID)),
		zap.String("amount", req.Amount.String()),
		zap.String("balance", balance.String()),
	)
	return s.overview.GetUserBillingInfo(ctx, req.UserID)
}

func (s *Service) GetInfo(ctx context.Context, userID string) (billingoverview.BillingInfo, error) {
	return s.overview.GetUserBillingInfo(ctx, userID)
}

func (s *Service) ListUsage(ctx context.Context, req billingoverview.ListUsageRequest) (billingoverview.ListUsageResponse, error) {
	return s.overview.ListUsage(ctx, req)
}

func (s *Service) RecordUsage(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.UsageRecord, error) {
	return s.usage.Record(ctx, req)
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (*ledgerdomain.ListTransactionsResponse, error) {
	return s.ledger.ListTransactions(ctx, req)
}

func (s *Service) ListPricing(ctx context.Context) ([]pricingdomain.PricingRule, error) {
	return s.pricing.ListActive(ctx)
}

func (s *Service) CreatePricingRule(ctx context.Context, req pricingdomain.CreateRuleRequest) (*pricingdomain.PricingRule, error) {
	return s.pricing.CreateRule(ctx, req)
}

func (s *Service) DeactivatePricingRule(ctx context.Context, id string) error {
	return s.pricing.Deactivate(ctx, id)
}

func (s *Service) AdjustBalance(ctx context.Context, req billingdomain.AdjustBalanceRequest) (billingoverview.BillingInfo, error) {
	if _, err := s.ledger.Adjust(ctx, req.UserID, req.Amount, req.Description); err != nil {
		return billingoverview.BillingInfo{}, err
	}
	s.log.Info("balance adjusted",
		zap.String("user_id", strings.TrimSpace(req.UserID)),
		zap.String("amount", req.Amount.String()),
	)
	return s.overview.GetUserBillingInfo(ctx, req.UserID)
}

func (s *Service) Reconcile(ctx context.Context, userID string) (*ledgerdomain.Reconciliation, error) {
	return s.ledger.Reconcile(ctx, userID)
}
