package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/cache"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/creditledger/internal/pricing/domain"
	"github.com/smallbiznis/creditledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    pricingdomain.Repository
	Cache   cache.PricingRuleCache
	Config  *config.BillingConfigHolder
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    pricingdomain.Repository
	cache   cache.PricingRuleCache
	cfg     *config.BillingConfigHolder
	clock   clock.Clock
	metrics *obsmetrics.Metrics
	group   singleflight.Group
}

func New(p Params) pricingdomain.Service {
	ruleCache := p.Cache
	if ruleCache == nil {
		ruleCache = cache.NewPricingRuleCache()
	}
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pricing.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		cache:   ruleCache,
		cfg:     p.Config,
		clock:   c,
		metrics: p.Metrics,
	}
}

// Resolve returns the active rule for the model. Lookups are case-insensitive.
// When several rules are active the newest one wins and the anomaly is reported.
func (s *Service) Resolve(ctx context.Context, provider, modelName string) (*pricingdomain.PricingRule, error) {
	provider, modelName, err := normalizeKey(provider, modelName)
	if err != nil {
		return nil, err
	}

	if rule, ok := s.cache.Get(provider, modelName); ok {
		return rule, nil
	}

	// The generation is part of the flight key so callers arriving after an
	// invalidation never join a load that started before it.
	gen := s.cache.Generation(provider, modelName)
	key := fmt.Sprintf("%s|%s|%d", provider, modelName, gen)
	// The shared load outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := s.group.DoChan(key, func() (any, error) {
		return s.loadActive(context.WithoutCancel(ctx), provider, modelName, gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rule := *(res.Val.(*pricingdomain.PricingRule))
		return &rule, nil
	}
}

func (s *Service) loadActive(ctx context.Context, provider, modelName string, gen uint64) (*pricingdomain.PricingRule, error) {
	rules, err := s.repo.FindActive(ctx, s.db, provider, modelName)
	if err != nil {
		return nil, fmt.Errorf("load pricing rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, pricingdomain.ErrPricingRuleNotFound
	}

	slices.SortStableFunc(rules, func(a, b pricingdomain.PricingRule) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	if len(rules) > 1 {
		ids := make([]string, 0, len(rules))
		for _, r := range rules {
			ids = append(ids, r.ID.String())
		}
		s.log.Warn("multiple active pricing rules",
			zap.String("provider", provider),
			zap.String("model_name", modelName),
			zap.String("selected_rule_id", rules[0].ID.String()),
			zap.Strings("active_rule_ids", ids),
		)
		s.metrics.RecordPricingAnomaly(ctx, provider)
	}

	rule := normalizeRule(rules[0])
	if !s.cache.Set(provider, modelName, gen, &rule, s.cfg.Get().Pricing.CacheTTL) {
		s.log.Debug("pricing rule changed during load, not cached",
			zap.String("provider", provider),
			zap.String("model_name", modelName),
		)
	}
	return &rule, nil
}

// CreateRule activates a new rule and retires every rule previously active for the same key.
func (s *Service) CreateRule(ctx context.Context, req pricingdomain.CreateRuleRequest) (*pricingdomain.PricingRule, error) {
	provider, modelName, err := normalizeKey(req.Provider, req.ModelName)
	if err != nil {
		return nil, err
	}

	inputPrice, err := parsePrice(req.InputTokenPrice)
	if err != nil {
		return nil, err
	}
	outputPrice, err := parsePrice(req.OutputTokenPrice)
	if err != nil {
		return nil, err
	}

	var basePrice decimal.NullDecimal
	if req.BasePrice != nil && strings.TrimSpace(*req.BasePrice) != "" {
		parsed, err := parsePrice(*req.BasePrice)
		if err != nil {
			return nil, err
		}
		basePrice = decimal.NewNullDecimal(parsed)
	}

	now := s.clock.Now()
	rule := &pricingdomain.PricingRule{
		ID:               s.genID.Generate(),
		Provider:         provider,
		ModelName:        modelName,
		InputTokenPrice:  inputPrice,
		OutputTokenPrice: outputPrice,
		BasePrice:        basePrice,
		IsActive:         true,
		CreatedAt:        now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		retired, err := s.repo.DeactivateKey(ctx, tx, provider, modelName, now)
		if err != nil {
			return err
		}
		if retired > 0 {
			s.log.Info("pricing rules superseded",
				zap.String("provider", provider),
				zap.String("model_name", modelName),
				zap.Int64("retired", retired),
			)
		}
		return s.repo.Insert(ctx, tx, rule)
	})
	if err != nil {
		return nil, fmt.Errorf("create pricing rule: %w", err)
	}

	s.cache.Invalidate(provider, modelName)
	return rule, nil
}

func (s *Service) ListActive(ctx context.Context) ([]pricingdomain.PricingRule, error) {
	rules, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i] = normalizeRule(rules[i])
	}
	return rules, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	ruleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || ruleID == 0 {
		return pricingdomain.ErrInvalidID
	}

	rule, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return err
	}
	if rule == nil {
		return pricingdomain.ErrPricingRuleNotFound
	}

	if _, err := s.repo.Deactivate(ctx, s.db, ruleID, s.clock.Now()); err != nil {
		return err
	}
	s.cache.Invalidate(rule.Provider, rule.ModelName)
	return nil
}

// normalizeRule strips driver float noise at the stored price scale. Prices are
// never rounded to the ledger scale; only computed costs are.
func normalizeRule(rule pricingdomain.PricingRule) pricingdomain.PricingRule {
	rule.InputTokenPrice = money.Normalize(rule.InputTokenPrice, pricingdomain.PriceScale)
	rule.OutputTokenPrice = money.Normalize(rule.OutputTokenPrice, pricingdomain.PriceScale)
	if rule.BasePrice.Valid {
		rule.BasePrice.Decimal = money.Normalize(rule.BasePrice.Decimal, pricingdomain.PriceScale)
	}
	return rule
}

func normalizeKey(provider, modelName string) (string, string, error) {
	provider = pricingdomain.NormalizeKey(provider)
	if provider == "" || utf8.RuneCountInString(provider) > pricingdomain.MaxProviderLength {
		return "", "", pricingdomain.ErrInvalidProvider
	}
	modelName = pricingdomain.NormalizeKey(modelName)
	if modelName == "" || utf8.RuneCountInString(modelName) > pricingdomain.MaxModelNameLength {
		return "", "", pricingdomain.ErrInvalidModelName
	}
	return provider, modelName, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := money.Parse(raw)
	if err != nil {
		if errors.Is(err, money.ErrInvalidAmount) {
			return decimal.Zero, pricingdomain.ErrInvalidPrice
		}
		return decimal.Zero, err
	}
	if price.IsNegative() || !money.FitsScale(price, pricingdomain.PriceScale) {
		return decimal.Zero, pricingdomain.ErrInvalidPrice
	}
	return price, nil
}
