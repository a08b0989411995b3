package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"github.com/smallbiznis/creditledger/pkg/db"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"github.com/smallbiznis/creditledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Config     *config.BillingConfigHolder
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	cfg        *config.BillingConfigHolder
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		cfg:        p.Config,
		clock:      c,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Credit(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	amount, err := s.positiveAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return s.post(ctx, ledgerdomain.Posting{
		UserID:      userID,
		Amount:      amount,
		Kind:        ledgerdomain.KindPurchase,
		Description: description,
	})
}

func (s *Service) Debit(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	amount, err := s.positiveAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return s.post(ctx, ledgerdomain.Posting{
		UserID:      userID,
		Amount:      amount.Neg(),
		Kind:        ledgerdomain.KindUsageDebit,
		Description: description,
	})
}

func (s *Service) Adjust(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	amount = money.Round(amount, s.scale())
	if amount.IsZero() {
		return decimal.Zero, ledgerdomain.ErrInvalidAmount
	}
	return s.post(ctx, ledgerdomain.Posting{
		UserID:      userID,
		Amount:      amount,
		Kind:        ledgerdomain.KindAdjustment,
		Description: description,
	})
}

// GetBalance returns zero for users that have never been credited or debited.
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, userID)
	if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

func (s *Service) GetAccount(ctx context.Context, userID string) (*ledgerdomain.Account, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccount(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	account.Balance = money.Normalize(account.Balance, s.scale())
	return account, nil
}

func (s *Service) ListTransactions(ctx context.Context, req ledgerdomain.ListTransactionsRequest) (*ledgerdomain.ListTransactionsResponse, error) {
	userID, err := normalizeUser(req.UserID)
	if err != nil {
		return nil, err
	}
	page, err := pagination.Request{Page: req.Page, Limit: req.Limit}.Normalize(s.cfg.Get().Report.MaxPageSize)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.CountTransactions(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListTransactions(ctx, s.db, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, err
	}

	scale := s.scale()
	for i := range items {
		items[i].Amount = money.Normalize(items[i].Amount, scale)
		items[i].BalanceAfter = money.Normalize(items[i].BalanceAfter, scale)
	}
	if items == nil {
		items = []ledgerdomain.CreditTransaction{}
	}

	return &ledgerdomain.ListTransactionsResponse{
		Transactions: items,
		Pagination:   pagination.Build(page, total),
	}, nil
}

// Reconcile recomputes the balance from the transaction log and reports any drift.
func (s *Service) Reconcile(ctx context.Context, userID string) (*ledgerdomain.Reconciliation, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return nil, err
	}

	var result *ledgerdomain.Reconciliation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Holding the row lock keeps postings out until the sum is read, so
		// balance and sum describe the same set of transactions.
		account, err := s.repo.LockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return ledgerdomain.ErrAccountNotFound
		}
		sum, count, err := s.repo.SumTransactions(ctx, tx, account.UserID)
		if err != nil {
			return err
		}

		scale := s.scale()
		balance := money.Normalize(account.Balance, scale)
		sum = money.Normalize(sum, scale)
		drift := balance.Sub(sum)
		result = &ledgerdomain.Reconciliation{
			UserID:           account.UserID,
			Balance:          balance,
			TransactionSum:   sum,
			Drift:            drift,
			TransactionCount: count,
			Consistent:       drift.IsZero(),
			CheckedAt:        s.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Consistent {
		s.log.Error("ledger drift detected",
			zap.String("user_id", result.UserID),
			zap.String("balance", result.Balance.String()),
			zap.String("transaction_sum", result.TransactionSum.String()),
		)
	}
	return result, nil
}

// PostTx locks the user's account row, appends the transaction and moves the
// balance, all on tx. The caller commits or rolls back.
func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, posting ledgerdomain.Posting) (*ledgerdomain.CreditTransaction, error) {
	userID, err := normalizeUser(posting.UserID)
	if err != nil {
		return nil, err
	}
	if err := validateKind(posting.Kind, posting.Amount); err != nil {
		return nil, err
	}

	scale := s.scale()
	amount := money.Round(posting.Amount, scale)
	if amount.IsZero() {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	account, err := s.lockOrOpenAccount(ctx, tx, userID, posting.Kind, amount, now)
	if err != nil {
		return nil, err
	}

	balance := money.Normalize(account.Balance, scale)
	next := balance.Add(amount)
	if amount.IsNegative() && next.IsNegative() && !s.cfg.Get().AllowOverdraft() {
		s.obsMetrics.RecordInsufficientCredits(ctx, string(posting.Kind))
		return nil, ledgerdomain.ErrInsufficientCredits
	}

	txn := &ledgerdomain.CreditTransaction{
		ID:           s.genID.Generate(),
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: next,
		Kind:         posting.Kind,
		Description:  strings.TrimSpace(posting.Description),
		ReferenceID:  posting.ReferenceID,
		CreatedAt:    now,
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := s.repo.UpdateBalance(ctx, tx, userID, next, now); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	return txn, nil
}

// lockOrOpenAccount locks the user's row, creating it first when the posting
// can succeed. A refused debit never leaves an empty account behind.
func (s *Service) lockOrOpenAccount(ctx context.Context, tx *gorm.DB, userID string, kind ledgerdomain.TransactionKind, amount decimal.Decimal, now time.Time) (*ledgerdomain.Account, error) {
	account, err := s.repo.LockAccount(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	if account != nil {
		return account, nil
	}
	if amount.IsNegative() && !s.cfg.Get().AllowOverdraft() {
		s.obsMetrics.RecordInsufficientCredits(ctx, string(kind))
		return nil, ledgerdomain.ErrInsufficientCredits
	}

	if err := s.repo.EnsureAccount(ctx, tx, userID, now); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	account, err = s.repo.LockAccount(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) post(ctx context.Context, posting ledgerdomain.Posting) (decimal.Decimal, error) {
	var txn *ledgerdomain.CreditTransaction
	retry := s.cfg.Get().Retry
	err := db.WithRetry(ctx, s.db, db.RetryOptions{
		MaxAttempts: retry.MaxAttempts,
		Backoff:     retry.Backoff,
		OnRetry: func(attempt int, err error) {
			s.log.Warn("retrying ledger posting",
				zap.String("kind", string(posting.Kind)),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			s.obsMetrics.RecordTxRetry(ctx, string(posting.Kind))
		},
	}, func(tx *gorm.DB) error {
		var err error
		txn, err = s.PostTx(ctx, tx, posting)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.obsMetrics.RecordLedgerPosting(ctx, string(txn.Kind))
	s.log.Debug("ledger posting applied",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("kind", string(txn.Kind)),
	)
	return txn.BalanceAfter, nil
}

func (s *Service) positiveAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = money.Round(amount, s.scale())
	if !amount.IsPositive() {
		return decimal.Zero, ledgerdomain.ErrInvalidAmount
	}
	return amount, nil
}

func (s *Service) scale() int32 {
	return s.cfg.Get().Ledger.Scale
}

func normalizeUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ledgerdomain.ErrInvalidUser
	}
	return userID, nil
}

func validateKind(kind ledgerdomain.TransactionKind, amount decimal.Decimal) error {
	switch kind {
	case ledgerdomain.KindPurchase:
		if !amount.IsPositive() {
			return ledgerdomain.ErrInvalidAmount
		}
	case ledgerdomain.KindUsageDebit:
		if !amount.IsNegative() {
			return ledgerdomain.ErrInvalidAmount
		}
	case ledgerdomain.KindAdjustment:
	default:
		return ledgerdomain.ErrInvalidKind
	}
	return nil
}
