package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/ledger/repository"
	"github.com/smallbiznis/creditledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupLedger(t *testing.T, mutators ...func(*config.BillingConfig)) (ledgerdomain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  testutil.MustNode(t),
		Repo:   repository.Provide(),
		Config: testutil.BillingConfig(mutators...),
		Clock:  testutil.Clock(),
	})
	return svc, db
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreditCreatesAccountLazily(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.GetAccount(ctx, "u1")
	require.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)

	balance, err := svc.Credit(ctx, "u1", dec("100"), "top-up")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100")), "balance %s", balance)

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("100")))
}

func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	for _, amount := range []string{"0", "-5", "0.000000001"} {
		_, err := svc.Credit(ctx, "u1", dec(amount), "bad")
		assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount, amount)
	}

	_, err := svc.GetAccount(ctx, "u1")
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestGetBalanceUnknownUserIsZeroWithoutSideEffects(t *testing.T) {
	svc, db := setupLedger(t)

	balance, err := svc.GetBalance(context.Background(), "ghost")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	var count int64
	require.NoError(t, db.Model(&ledgerdomain.Account{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDebitBlockedWhenInsufficient(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", dec("50"), "top-up")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, "u1", dec("60"), "usage")
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	balance, err := svc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("50")))

	var txns int64
	require.NoError(t, db.Model(&ledgerdomain.CreditTransaction{}).Where("user_id = ?", "u1").Count(&txns).Error)
	assert.EqualValues(t, 1, txns)
}

func TestDebitUnknownUserLeavesNoAccount(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Debit(ctx, "new-user", dec("1"), "usage")
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	_, err = svc.GetAccount(ctx, "new-user")
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestDebitAllowedIntoOverdraftWhenConfigured(t *testing.T) {
	svc, _ := setupLedger(t, func(cfg *config.BillingConfig) {
		cfg.Ledger.Overdraft = config.OverdraftAllow
	})
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", dec("5"), "top-up")
	require.NoError(t, err)

	balance, err := svc.Debit(ctx, "u1", dec("7.5"), "usage")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("-2.5")), "balance %s", balance)
}

func TestAdjustSignedAmounts(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, "u1", dec("10"), "goodwill")
	require.NoError(t, err)

	balance, err := svc.Adjust(ctx, "u1", dec("-4"), "correction")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("6")))

	_, err = svc.Adjust(ctx, "u1", dec("-7"), "too much")
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	_, err = svc.Adjust(ctx, "u1", decimal.Zero, "noop")
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)
}

func TestBalanceMatchesTransactionSum(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	steps := []struct {
		op     string
		amount string
	}{
		{"credit", "100"},
		{"debit", "0.0028"},
		{"debit", "12.12345678"},
		{"adjust", "-1.5"},
		{"credit", "0.1"},
		{"debit", "0.2"},
	}
	for _, step := range steps {
		var err error
		switch step.op {
		case "credit":
			_, err = svc.Credit(ctx, "u1", dec(step.amount), step.op)
		case "debit":
			_, err = svc.Debit(ctx, "u1", dec(step.amount), step.op)
		case "adjust":
			_, err = svc.Adjust(ctx, "u1", dec(step.amount), step.op)
		}
		require.NoError(t, err, "%s %s", step.op, step.amount)
	}

	rec, err := svc.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "drift %s", rec.Drift)
	assert.EqualValues(t, len(steps), rec.TransactionCount)
	assert.True(t, rec.Balance.Equal(dec("86.27374322")), "balance %s", rec.Balance)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", dec("100"), "top-up")
	require.NoError(t, err)

	const workers = 50
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, "u1", dec("3"), "usage")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, succeeded)
	assert.Equal(t, workers-33, insufficient)

	balance, err := svc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("1")), "balance %s", balance)

	rec, err := svc.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
}

func TestPostTxRollsBackWithCallerTransaction(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", dec("10"), "top-up")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.PostTx(ctx, tx, ledgerdomain.Posting{
			UserID: "u1",
			Amount: dec("-4"),
			Kind:   ledgerdomain.KindUsageDebit,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	balance, err := svc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("10")))
}

func TestRefusedPostTxCreatesNoAccountWhenCallerCommits(t *testing.T) {
	svc, db := setupLedger(t)
	ctx := context.Background()

	// The caller keeps going after the refusal and commits its own writes.
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.PostTx(ctx, tx, ledgerdomain.Posting{
			UserID: "new-user",
			Amount: dec("-1"),
			Kind:   ledgerdomain.KindUsageDebit,
		})
		assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)
		return nil
	})
	require.NoError(t, err)

	_, err = svc.GetAccount(ctx, "new-user")
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestPostTxValidatesKindSign(t *testing.T) {
	svc, db := setupLedger(t)

	_, err := svc.PostTx(context.Background(), db, ledgerdomain.Posting{
		UserID: "u1",
		Amount: dec("4"),
		Kind:   ledgerdomain.KindUsageDebit,
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = svc.PostTx(context.Background(), db, ledgerdomain.Posting{
		UserID: "u1",
		Amount: dec("4"),
		Kind:   "refund",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidKind)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	svc, _ := setupLedger(t)
	ctx := context.Background()

	for _, amount := range []string{"1", "2", "3", "4", "5"} {
		_, err := svc.Credit(ctx, "u1", dec(amount), "top-up "+amount)
		require.NoError(t, err)
	}

	page, err := svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{UserID: "u1", Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "top-up 5", page.Transactions[0].Description)
	assert.Equal(t, "top-up 4", page.Transactions[1].Description)
	assert.True(t, page.Transactions[0].BalanceAfter.Equal(dec("15")))
	assert.EqualValues(t, 5, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.Pages)

	last, err := svc.ListTransactions(ctx, ledgerdomain.ListTransactionsRequest{UserID: "u1", Page: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, last.Transactions, 1)
	assert.Equal(t, "top-up 1", last.Transactions[0].Description)
}

func TestReconcileUnknownUser(t *testing.T) {
	svc, _ := setupLedger(t)
	_, err := svc.Reconcile(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}
