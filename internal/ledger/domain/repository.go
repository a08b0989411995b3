package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// EnsureAccount creates a zero-balance account if none exists.
	EnsureAccount(ctx context.Context, db *gorm.DB, userID string, now time.Time) error
	// LockAccount reads the account with a row lock held until db commits.
	LockAccount(ctx context.Context, db *gorm.DB, userID string) (*Account, error)
	FindAccount(ctx context.Context, db *gorm.DB, userID string) (*Account, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, userID string, balance decimal.Decimal, now time.Time) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *CreditTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]CreditTransaction, error)
	CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error)
	SumTransactions(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, int64, error)
}
