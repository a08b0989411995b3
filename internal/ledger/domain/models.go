package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger posting.
type TransactionKind string

const (
	KindPurchase   TransactionKind = "purchase"
	KindUsageDebit TransactionKind = "usage-debit"
	KindAdjustment TransactionKind = "adjustment"
)

// Account is the cached balance for one user. Balance always equals the sum of
// the user's transaction amounts.
type Account struct {
	UserID    string          `json:"user_id" gorm:"primaryKey;type:varchar(191)"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(28,8);not null;default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "credit_accounts" }

// CreditTransaction is an append-only signed balance movement.
type CreditTransaction struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UserID       string          `json:"user_id" gorm:"type:varchar(191);not null;index:idx_credit_transactions_user_created,priority:1"`
	Amount       decimal.Decimal `json:"amount" gorm:"type:numeric(28,8);not null"`
	BalanceAfter decimal.Decimal `json:"balance_after" gorm:"type:numeric(28,8);not null"`
	Kind         TransactionKind `json:"kind" gorm:"type:varchar(32);not null"`
	Description  string          `json:"description" gorm:"type:text"`
	ReferenceID  *string         `json:"reference_id,omitempty" gorm:"type:varchar(64);index"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;index:idx_credit_transactions_user_created,priority:2"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// Posting is a single balance movement. Amount is signed: positive adds credits.
type Posting struct {
	UserID      string
	Amount      decimal.Decimal
	Kind        TransactionKind
	Description string
	ReferenceID *string
}

// Reconciliation compares the cached balance with the transaction sum.
type Reconciliation struct {
	UserID           string          `json:"user_id"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionSum   decimal.Decimal `json:"transaction_sum"`
	Drift            decimal.Decimal `json:"drift"`
	TransactionCount int64           `json:"transaction_count"`
	Consistent       bool            `json:"consistent"`
	CheckedAt        time.Time       `json:"checked_at"`
}
