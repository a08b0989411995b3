package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"github.com/smallbiznis/creditledger/pkg/money"
	"gorm.io/gorm"
)

type Service interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	// Adjust posts a signed correction. Negative adjustments obey the overdraft policy.
	Adjust(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	GetAccount(ctx context.Context, userID string) (*Account, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (*ListTransactionsResponse, error)
	Reconcile(ctx context.Context, userID string) (*Reconciliation, error)
	// PostTx applies a posting inside a transaction owned by the caller.
	PostTx(ctx context.Context, tx *gorm.DB, posting Posting) (*CreditTransaction, error)
}

type ListTransactionsRequest struct {
	UserID string
	Page   int
	Limit  int
}

type ListTransactionsResponse struct {
	Transactions []CreditTransaction   `json:"transactions"`
	Pagination   pagination.Pagination `json:"pagination"`
}

var (
	ErrInvalidAmount       = money.ErrInvalidAmount
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidKind         = errors.New("invalid_transaction_kind")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrAccountNotFound     = errors.New("account_not_found")
)
