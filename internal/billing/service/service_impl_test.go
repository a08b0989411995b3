package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/creditledger/internal/billing/domain"
	billingoverview "github.com/smallbiznis/creditledger/internal/billingoverview/domain"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLedger struct {
	mock.Mock
	ledgerdomain.Service
}

func (m *mockLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, amount, description)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockLedger) Adjust(ctx context.Context, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, amount, description)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type mockOverview struct {
	mock.Mock
	billingoverview.Service
}

func (m *mockOverview) GetUserBillingInfo(ctx context.Context, userID string) (billingoverview.BillingInfo, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(billingoverview.BillingInfo), args.Error(1)
}

func newFacade(ledger *mockLedger, overview *mockOverview) billingdomain.Service {
	return NewService(Params{Log: zap.NewNop(), Ledger: ledger, Overview: overview})
}

func TestAddCreditsDefaultsDescription(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("25")
	ledger := &mockLedger{}
	overview := &mockOverview{}
	want := billingoverview.BillingInfo{UserID: "u1", Balance: amount}

	ledger.On("Credit", ctx, "u1", amount, billingdomain.DefaultCreditDescription).Return(amount, nil).Once()
	overview.On("GetUserBillingInfo", ctx, "u1").Return(want, nil).Once()

	got, err := newFacade(ledger, overview).AddCredits(ctx, billingdomain.AddCreditsRequest{UserID: "u1", Amount: amount, Description: "  "})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	ledger.AssertExpectations(t)
	overview.AssertExpectations(t)
}

func TestAddCreditsStopsOnLedgerError(t *testing.T) {
	ctx := context.Background()
	ledger := &mockLedger{}
	overview := &mockOverview{}

	ledger.On("Credit", ctx, "u1", decimal.Zero, "gift").Return(decimal.Zero, ledgerdomain.ErrInvalidAmount).Once()

	_, err := newFacade(ledger, overview).AddCredits(ctx, billingdomain.AddCreditsRequest{UserID: "u1", Amount: decimal.Zero, Description: "gift"})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)
	overview.AssertNotCalled(t, "GetUserBillingInfo", mock.Anything, mock.Anything)
}

func TestAdjustBalanceReturnsFreshInfo(t *testing.T) {
	ctx := context.Background()
	amount := decimal.RequireFromString("-3")
	ledger := &mockLedger{}
	overview := &mockOverview{}
	want := billingoverview.BillingInfo{UserID: "u1", Balance: decimal.RequireFromString("7")}

	ledger.On("Adjust", ctx, "u1", amount, "refund reversal").Return(want.Balance, nil).Once()
	overview.On("GetUserBillingInfo", ctx, "u1").Return(want, nil).Once()

	got, err := newFacade(ledger, overview).AdjustBalance(ctx, billingdomain.AdjustBalanceRequest{UserID: "u1", Amount: amount, Description: "refund reversal"})
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(want.Balance))
	ledger.AssertExpectations(t)
}
