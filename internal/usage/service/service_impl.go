package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/smallbiznis/creditledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Resolver   pricingdomain.Resolver
	Ledger     ledgerdomain.Service
	Repo       usagedomain.Repository
	Config     *config.BillingConfigHolder
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	resolver   pricingdomain.Resolver
	ledger     ledgerdomain.Service
	repo       usagedomain.Repository
	cfg        *config.BillingConfigHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Recorder {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:      p.GenID,
		resolver:   p.Resolver,
		ledger:     p.Ledger,
		repo:       p.Repo,
		cfg:        p.Config,
		clock:      c,
		obsMetrics: p.ObsMetrics,
	}
}

// Record prices a completion and writes the usage record together with its
// debit. Either both are stored or neither is.
func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.UsageRecord, error) {
	userID, provider, modelName, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	cfg := s.cfg.Get()
	rate, ruleID, err := s.resolveRate(ctx, cfg, provider, modelName)
	if err != nil {
		return nil, err
	}

	cost := usagedomain.ComputeCost(req.InputTokens, req.OutputTokens, rate, cfg.Ledger.Scale)

	base := usagedomain.UsageRecord{
		ID:            s.genID.Generate(),
		UserID:        userID,
		Provider:      provider,
		ModelName:     modelName,
		InputTokens:   req.InputTokens,
		OutputTokens:  req.OutputTokens,
		TotalTokens:   req.InputTokens + req.OutputTokens,
		TotalCost:     cost,
		PricingRuleID: ruleID,
		CreatedAt:     s.clock.Now(),
	}
	if len(req.Metadata) > 0 {
		base.Metadata = datatypes.JSONMap(req.Metadata)
	}

	var record usagedomain.UsageRecord
	err = db.WithRetry(ctx, s.db, db.RetryOptions{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
		OnRetry: func(attempt int, err error) {
			s.log.Warn("retrying usage record", zap.Int("attempt", attempt), zap.Error(err))
			s.obsMetrics.RecordTxRetry(ctx, "usage_record")
		},
	}, func(tx *gorm.DB) error {
		record = base
		status, err := s.settle(ctx, tx, cfg, &record)
		if err != nil {
			return err
		}
		record.Status = status
		return s.repo.Insert(ctx, tx, &record)
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
			s.log.Info("usage rejected for insufficient credits",
				zap.String("user_id", userID),
				zap.String("provider", provider),
				zap.String("model_name", modelName),
				zap.String("cost", cost.String()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("record usage: %w", err)
	}

	s.obsMetrics.RecordUsage(ctx, provider, string(record.Status))
	return &record, nil
}

// settle posts the usage debit on tx and returns the resulting record status.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, cfg config.BillingConfig, record *usagedomain.UsageRecord) (usagedomain.UsageStatus, error) {
	if record.TotalCost.IsZero() {
		return usagedomain.StatusFree, nil
	}

	reference := record.ID.String()
	_, err := s.ledger.PostTx(ctx, tx, ledgerdomain.Posting{
		UserID:      record.UserID,
		Amount:      record.TotalCost.Neg(),
		Kind:        ledgerdomain.KindUsageDebit,
		Description: fmt.Sprintf("usage: %s/%s", record.Provider, record.ModelName),
		ReferenceID: &reference,
	})
	switch {
	case err == nil:
		s.obsMetrics.RecordLedgerPosting(ctx, string(ledgerdomain.KindUsageDebit))
		return usagedomain.StatusCharged, nil
	case errors.Is(err, ledgerdomain.ErrInsufficientCredits) &&
		cfg.Usage.OnInsufficientCredits == config.InsufficientCreditsUncollectible:
		s.log.Warn("usage stored as uncollectible",
			zap.String("user_id", record.UserID),
			zap.String("usage_id", reference),
			zap.String("cost", record.TotalCost.String()),
		)
		return usagedomain.StatusUncollectible, nil
	default:
		return "", err
	}
}

func (s *Service) resolveRate(ctx context.Context, cfg config.BillingConfig, provider, modelName string) (usagedomain.Rate, *snowflake.ID, error) {
	rule, err := s.resolver.Resolve(ctx, provider, modelName)
	if err == nil {
		ruleID := rule.ID
		return usagedomain.Rate{
			InputTokenPrice:  rule.InputTokenPrice,
			OutputTokenPrice: rule.OutputTokenPrice,
			BasePrice:        rule.BasePrice,
		}, &ruleID, nil
	}
	if !errors.Is(err, pricingdomain.ErrPricingRuleNotFound) {
		return usagedomain.Rate{}, nil, fmt.Errorf("resolve pricing: %w", err)
	}

	policy := cfg.Pricing.Fallback
	switch policy {
	case config.PricingFallbackZero:
		s.log.Warn("no pricing rule, recording usage at zero cost",
			zap.String("provider", provider),
			zap.String("model_name", modelName),
		)
		s.obsMetrics.RecordPricingFallback(ctx, policy)
		return usagedomain.Rate{InputTokenPrice: decimal.Zero, OutputTokenPrice: decimal.Zero}, nil, nil
	case config.PricingFallbackDefaultRate:
		input, output, basePrice, err := cfg.DefaultRates()
		if err != nil {
			return usagedomain.Rate{}, nil, err
		}
		rate := usagedomain.Rate{InputTokenPrice: input, OutputTokenPrice: output}
		if basePrice != nil {
			rate.BasePrice = decimal.NewNullDecimal(*basePrice)
		}
		s.log.Warn("no pricing rule, using default rate",
			zap.String("provider", provider),
			zap.String("model_name", modelName),
		)
		s.obsMetrics.RecordPricingFallback(ctx, policy)
		return rate, nil, nil
	default:
		return usagedomain.Rate{}, nil, usagedomain.ErrPricingUnavailable
	}
}

func validateRequest(req usagedomain.RecordRequest) (string, string, string, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return "", "", "", usagedomain.ErrInvalidUser
	}
	provider := pricingdomain.NormalizeKey(req.Provider)
	if provider == "" || utf8.RuneCountInString(provider) > pricingdomain.MaxProviderLength {
		return "", "", "", usagedomain.ErrInvalidProvider
	}
	modelName := pricingdomain.NormalizeKey(req.ModelName)
	if modelName == "" || utf8.RuneCountInString(modelName) > pricingdomain.MaxModelNameLength {
		return "", "", "", usagedomain.ErrInvalidModelName
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 {
		return "", "", "", usagedomain.ErrInvalidTokens
	}
	return userID, provider, modelName, nil
}
