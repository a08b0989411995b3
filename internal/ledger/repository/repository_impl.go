package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const txnColumns = `id, user_id, amount, balance_after, kind, description, reference_id, created_at`

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureAccount(ctx context.Context, db *gorm.DB, userID string, now time.Time) error {
	account := ledgerdomain.Account{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account).Error
}

// LockAccount issues SELECT ... FOR UPDATE. Dialects without row locks
// (sqlite) drop the clause and rely on their single-writer lock instead.
func (r *repo) LockAccount(ctx context.Context, db *gorm.DB, userID string) (*ledgerdomain.Account, error) {
	var account ledgerdomain.Account
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// FindAccount is a plain read without a row lock.
func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, userID string) (*ledgerdomain.Account, error) {
	return repository.ProvideStore[ledgerdomain.Account](db).FindOne(ctx, &ledgerdomain.Account{UserID: userID})
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, userID string, balance decimal.Decimal, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credit_accounts SET balance = ?, updated_at = ? WHERE user_id = ?`,
		balance,
		now,
		userID,
	).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *ledgerdomain.CreditTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (`+txnColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		txn.Amount,
		txn.BalanceAfter,
		string(txn.Kind),
		txn.Description,
		txn.ReferenceID,
		txn.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, userID string, limit, offset int) ([]ledgerdomain.CreditTransaction, error) {
	var items []ledgerdomain.CreditTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+txnColumns+`
		 FROM credit_transactions
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM credit_transactions WHERE user_id = ?`,
		userID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) SumTransactions(ctx context.Context, db *gorm.DB, userID string) (decimal.Decimal, int64, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM credit_transactions WHERE user_id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, err
	}
	return row.Total, row.Count, nil
}
