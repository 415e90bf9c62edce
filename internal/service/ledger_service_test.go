package service

import (
	"context"
	"fmt"
	"testing"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/internal/core/ports/mocks"
	"customer-wallet-ledger/pkg/apperror"
	"customer-wallet-ledger/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// decimalEq matches a decimal by value regardless of its exponent.
type decimalEq struct{ want decimal.Decimal }

func (m decimalEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string { return fmt.Sprintf("is decimal %s", m.want) }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// runInTx makes a mocked transactor invoke the unit of work with a fake tx.
func runInTx(transactor *mocks.MockDBTransactor, tx pgx.Tx) *gomock.Call {
	return transactor.EXPECT().WithinTx(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ ports.TxOptions, fn ports.TxFunc) error {
			return fn(ctx, tx)
		},
	)
}

type ledgerTestDeps struct {
	svc        *LedgerServiceImpl
	walletRepo *mocks.MockWalletRepository
	ledgerRepo *mocks.MockLedgerRepository
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerService(d.walletRepo, d.ledgerRepo, d.transactor, "IQD", zerolog.Nop())
	return d
}

// ==================== Append Tests ====================

func TestLedgerService_Append_Credit(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	adminID := int64(9)

	runInTx(d.transactor, tx)
	d.walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), tx, int64(7), "IQD").
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: dec(0), Currency: "IQD", IsActive: true}, nil)
	d.ledgerRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			assert.Equal(t, int64(1), e.WalletID)
			assert.True(t, e.Amount.Equal(dec(50000)))
			assert.True(t, e.BalanceAfter.Equal(dec(50000)))
			assert.Equal(t, domain.ReferenceRechargeRequest, e.ReferenceType)
			require.NotNil(t, e.ReferenceID)
			assert.Equal(t, int64(3), *e.ReferenceID)
			e.ID = 100
			return nil
		},
	)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, int64(1), decimalEq{dec(50000)}).Return(nil)

	res, err := d.svc.Append(ctx, ports.AppendRequest{
		CustomerID: 7,
		Amount:     dec(50000),
		Kind:       domain.EntryKindRechargeApproved,
		Reference:  &domain.Reference{Type: domain.ReferenceRechargeRequest, ID: 3},
		Actor:      &adminID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Entry.ID)
	assert.True(t, res.Wallet.Balance.Equal(dec(50000)))
}

func TestLedgerService_AppendTx_InsufficientBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), tx, int64(7), "IQD").
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: dec(10000), IsActive: true}, nil)
	// No ledger write and no balance update.

	_, err := d.svc.AppendTx(context.Background(), tx, ports.AppendRequest{
		CustomerID: 7,
		Amount:     dec(-15000),
		Kind:       domain.EntryKindAdminDebit,
		Reason:     "correction",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientBalance))
}

func TestLedgerService_AppendTx_BalanceAboveStorageCeiling(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), tx, int64(7), "IQD").
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: money.MaxStorable.Sub(dec(10)), IsActive: true}, nil)
	// Rejected before anything is written.

	_, err := d.svc.AppendTx(context.Background(), tx, ports.AppendRequest{
		CustomerID: 7,
		Amount:     dec(11),
		Kind:       domain.EntryKindAdminCredit,
		Reason:     "bonus",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
}

func TestLedgerService_AppendTx_InactiveWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), tx, int64(7), "IQD").
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: dec(500), IsActive: false}, nil)

	_, err := d.svc.AppendTx(context.Background(), tx, ports.AppendRequest{
		CustomerID: 7,
		Amount:     dec(100),
		Kind:       domain.EntryKindRechargeApproved,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestLedgerService_AppendTx_SetBalanceWritesDelta(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), tx, int64(7), "IQD").
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: dec(12000), IsActive: true}, nil)
	d.ledgerRepo.EXPECT().Create(gomock.Any(), tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			assert.Equal(t, domain.EntryKindAdminSetBalance, e.Kind)
			assert.True(t, e.Amount.Equal(dec(-7000)))
			assert.True(t, e.BalanceAfter.Equal(dec(5000)))
			assert.Equal(t, "5000", e.Metadata[domain.MetaTargetBalance])
			assert.Equal(t, "12000", e.Metadata[domain.MetaPreviousBalance])
			return nil
		},
	)
	d.walletRepo.EXPECT().UpdateBalance(gomock.Any(), tx, int64(1), decimalEq{dec(5000)}).Return(nil)

	res, err := d.svc.AppendTx(context.Background(), tx, ports.AppendRequest{
		CustomerID:    7,
		Kind:          domain.EntryKindAdminSetBalance,
		TargetBalance: dec(5000),
		Reason:        "manual correction",
	})
	require.NoError(t, err)
	assert.True(t, res.Wallet.Balance.Equal(dec(5000)))
}

func TestLedgerService_AppendTx_SetBalanceToCurrentIsRejected(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), tx, int64(7), "IQD").
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: dec(5000), IsActive: true}, nil)

	_, err := d.svc.AppendTx(context.Background(), tx, ports.AppendRequest{
		CustomerID:    7,
		Kind:          domain.EntryKindAdminSetBalance,
		TargetBalance: decimal.RequireFromString("5000.00"),
		Reason:        "noop",
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestLedgerService_AppendTx_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  ports.AppendRequest
	}{
		{"unknown kind", ports.AppendRequest{CustomerID: 1, Amount: dec(5), Kind: "bonus"}},
		{"zero amount", ports.AppendRequest{CustomerID: 1, Amount: dec(0), Kind: domain.EntryKindRechargeApproved}},
		{"negative credit", ports.AppendRequest{CustomerID: 1, Amount: dec(-5), Kind: domain.EntryKindRechargeApproved}},
		{"positive debit", ports.AppendRequest{CustomerID: 1, Amount: dec(5), Kind: domain.EntryKindOrderPayment}},
		{"admin credit without reason", ports.AppendRequest{CustomerID: 1, Amount: dec(5), Kind: domain.EntryKindAdminCredit, Reason: "  "}},
		{"negative target", ports.AppendRequest{CustomerID: 1, Kind: domain.EntryKindAdminSetBalance, TargetBalance: dec(-1), Reason: "x"}},
		{"credit above storage ceiling", ports.AppendRequest{CustomerID: 1, Amount: decimal.RequireFromString("100000000000000000000"), Kind: domain.EntryKindRechargeApproved}},
		{"target above storage ceiling", ports.AppendRequest{CustomerID: 1, Kind: domain.EntryKindAdminSetBalance, TargetBalance: money.MaxStorable.Add(dec(1)), Reason: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupLedgerService(t)
			defer d.ctrl.Finish()

			_, err := d.svc.AppendTx(context.Background(), &mockTx{}, tt.req)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
		})
	}
}

// ==================== Read Tests ====================

func TestLedgerService_GetBalance_NoWalletIsZero(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	d.walletRepo.EXPECT().GetByCustomerID(gomock.Any(), nil, int64(7)).Return(nil, nil)

	view, err := d.svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, view.Balance.IsZero())
	assert.Equal(t, int64(0), view.WalletID)
	assert.Equal(t, "IQD", view.Currency)
}

func TestLedgerService_GetBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	d.walletRepo.EXPECT().GetByCustomerID(gomock.Any(), nil, int64(7)).
		Return(&domain.Wallet{ID: 4, CustomerID: 7, Balance: dec(2500), Currency: "IQD", IsActive: true}, nil)

	view, err := d.svc.GetBalance(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(4), view.WalletID)
	assert.True(t, view.Balance.Equal(dec(2500)))
}

func entriesDesc(from, to int64) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for id := from; id >= to; id-- {
		out = append(out, domain.LedgerEntry{ID: id, WalletID: 4, Amount: dec(1), BalanceAfter: dec(id)})
	}
	return out
}

func TestLedgerService_GetHistory_Pagination(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	wallet := &domain.Wallet{ID: 4, CustomerID: 7}
	d.walletRepo.EXPECT().GetByCustomerID(gomock.Any(), nil, int64(7)).Return(wallet, nil).Times(2)

	// First page: 3 requested, 4 fetched, so a cursor is returned.
	d.ledgerRepo.EXPECT().ListByWallet(gomock.Any(), nil, ports.LedgerListParams{WalletID: 4, Limit: 4}).
		Return(entriesDesc(5, 2), nil)
	page, err := d.svc.GetHistory(context.Background(), 7, ports.HistoryPage{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, int64(3), *page.NextCursor)

	// Last page: fewer rows than the limit, no cursor.
	d.ledgerRepo.EXPECT().ListByWallet(gomock.Any(), nil, ports.LedgerListParams{WalletID: 4, BeforeID: 3, Limit: 4}).
		Return(entriesDesc(2, 1), nil)
	page, err = d.svc.GetHistory(context.Background(), 7, ports.HistoryPage{BeforeID: 3, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)
	assert.Nil(t, page.NextCursor)
}

func TestLedgerService_GetHistory_LimitIsClamped(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	d.walletRepo.EXPECT().GetByCustomerID(gomock.Any(), nil, int64(7)).Return(&domain.Wallet{ID: 4}, nil).Times(2)
	d.ledgerRepo.EXPECT().ListByWallet(gomock.Any(), nil, ports.LedgerListParams{WalletID: 4, Limit: maxHistoryLimit + 1}).Return(nil, nil)
	d.ledgerRepo.EXPECT().ListByWallet(gomock.Any(), nil, ports.LedgerListParams{WalletID: 4, Limit: defaultHistoryLimit + 1}).Return(nil, nil)

	page, err := d.svc.GetHistory(context.Background(), 7, ports.HistoryPage{Limit: 5000})
	require.NoError(t, err)
	assert.NotNil(t, page.Entries)

	_, err = d.svc.GetHistory(context.Background(), 7, ports.HistoryPage{})
	require.NoError(t, err)
}

func TestLedgerService_GetHistory_NoWallet(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	d.walletRepo.EXPECT().GetByCustomerID(gomock.Any(), nil, int64(7)).Return(nil, nil)

	page, err := d.svc.GetHistory(context.Background(), 7, ports.HistoryPage{})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Nil(t, page.NextCursor)
}
