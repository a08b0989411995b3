package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	billingoverview "github.com/smallbiznis/creditledger/internal/billingoverview/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"github.com/smallbiznis/creditledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// maxWindowDays bounds the lookback so the window start stays a sane timestamp.
const maxWindowDays = 3650

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Ledger    ledgerdomain.Service
	UsageRepo usagedomain.Repository
	Config    *config.BillingConfigHolder
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	ledger    ledgerdomain.Service
	usageRepo usagedomain.Repository
	cfg       *config.BillingConfigHolder
}

func NewService(p Params) billingoverview.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billingoverview.service"),
		clock:     c,
		ledger:    p.Ledger,
		usageRepo: p.UsageRepo,
		cfg:       p.Config,
	}
}

func (s *Service) GetUserBillingInfo(ctx context.Context, userID string) (billingoverview.BillingInfo, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return billingoverview.BillingInfo{}, err
	}
	windowDays := s.cfg.Get().Report.DefaultWindowDays

	var (
		account *ledgerdomain.Account
		stats   billingoverview.UsageStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		acct, err := s.ledger.GetAccount(gctx, userID)
		if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
			return nil
		}
		account = acct
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.GetUserUsageStats(gctx, userID, windowDays)
		return err
	})
	if err := g.Wait(); err != nil {
		return billingoverview.BillingInfo{}, err
	}

	info := billingoverview.BillingInfo{
		UserID:      userID,
		Balance:     decimal.Zero,
		RecentUsage: stats,
	}
	if account != nil {
		updatedAt := account.UpdatedAt
		info.Balance = account.Balance
		info.UpdatedAt = &updatedAt
	}
	return info, nil
}

func (s *Service) GetUserUsageStats(ctx context.Context, userID string, windowDays int) (billingoverview.UsageStats, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return billingoverview.UsageStats{}, err
	}
	since, err := s.windowStart(windowDays)
	if err != nil {
		return billingoverview.UsageStats{}, err
	}

	summary, err := s.usageRepo.Summarize(ctx, s.db, userID, since)
	if err != nil {
		return billingoverview.UsageStats{}, fmt.Errorf("summarize usage: %w", err)
	}
	return s.toStats(windowDays, summary), nil
}

// ListUsage pages through the window newest first. The count, the page and the
// window summary are read concurrently.
func (s *Service) ListUsage(ctx context.Context, req billingoverview.ListUsageRequest) (billingoverview.ListUsageResponse, error) {
	userID, err := normalizeUser(req.UserID)
	if err != nil {
		return billingoverview.ListUsageResponse{}, err
	}
	since, err := s.windowStart(req.WindowDays)
	if err != nil {
		return billingoverview.ListUsageResponse{}, err
	}
	page, err := pagination.Request{Page: req.Page, Limit: req.Limit}.Normalize(s.cfg.Get().Report.MaxPageSize)
	if err != nil {
		return billingoverview.ListUsageResponse{}, err
	}

	var (
		total   int64
		records []usagedomain.UsageRecord
		summary usagedomain.Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.usageRepo.Count(gctx, s.db, userID, since)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.usageRepo.List(gctx, s.db, userID, since, page.Limit, page.Offset())
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = s.usageRepo.Summarize(gctx, s.db, userID, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return billingoverview.ListUsageResponse{}, fmt.Errorf("list usage: %w", err)
	}

	scale := s.scale()
	for i := range records {
		records[i].TotalCost = money.Normalize(records[i].TotalCost, scale)
	}
	if records == nil {
		records = []usagedomain.UsageRecord{}
	}

	return billingoverview.ListUsageResponse{
		Usage:      records,
		Summary:    s.toStats(req.WindowDays, summary),
		Pagination: pagination.Build(page, total),
	}, nil
}

func (s *Service) windowStart(windowDays int) (time.Time, error) {
	if windowDays < 1 || windowDays > maxWindowDays {
		return time.Time{}, billingoverview.ErrInvalidWindow
	}
	return s.clock.Now().Add(-time.Duration(windowDays) * 24 * time.Hour), nil
}

func (s *Service) toStats(windowDays int, summary usagedomain.Summary) billingoverview.UsageStats {
	return billingoverview.UsageStats{
		WindowDays:        windowDays,
		RecordCount:       summary.TotalRequests,
		TotalInputTokens:  summary.InputTokens,
		TotalOutputTokens: summary.OutputTokens,
		TotalTokens:       summary.TotalTokens,
		TotalCost:         money.Normalize(summary.TotalCost, s.scale()),
	}
}

func (s *Service) scale() int32 {
	return s.cfg.Get().Ledger.Scale
}

func normalizeUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", billingoverview.ErrInvalidUser
	}
	return userID, nil
}
