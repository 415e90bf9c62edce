package service

import (
	"context"
	"errors"
	"testing"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/internal/core/ports/mocks"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReportingService_GetCustomerSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	ledgerRepo := mocks.NewMockLedgerRepository(ctrl)
	rechargeRepo := mocks.NewMockRechargeRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	svc := NewReportingService(walletRepo, ledgerRepo, rechargeRepo, transactor)

	tx := &mockTx{}
	transactor.EXPECT().WithinTx(gomock.Any(), ports.TxOptions{ReadOnly: true}, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ ports.TxOptions, fn ports.TxFunc) error {
			return fn(ctx, tx)
		},
	)
	pending := domain.RechargeStatusPending
	rechargeRepo.EXPECT().ListByCustomer(gomock.Any(), tx, int64(7), &pending).
		Return([]domain.RechargeRequest{{ID: 3, Status: domain.RechargeStatusPending}}, nil)
	walletRepo.EXPECT().GetByCustomerID(gomock.Any(), tx, int64(7)).
		Return(&domain.Wallet{ID: 1, CustomerID: 7, Balance: dec(20000)}, nil)
	ledgerRepo.EXPECT().ListByWallet(gomock.Any(), tx, ports.LedgerListParams{WalletID: 1, Limit: summaryRecentEntries}).
		Return(entriesDesc(2, 1), nil)
	ledgerRepo.EXPECT().GetTotals(gomock.Any(), tx, int64(1)).
		Return(&ports.LedgerTotals{Recharged: dec(50000), Spent: dec(30000), Entries: 2}, nil)

	summary, err := svc.GetCustomerSummary(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(dec(20000)))
	assert.Len(t, summary.RecentEntries, 2)
	assert.Len(t, summary.PendingRecharges, 1)
	assert.True(t, summary.TotalRecharged.Equal(dec(50000)))
	assert.True(t, summary.TotalSpent.Equal(dec(30000)))
}

func TestReportingService_GetCustomerSummary_NoWallet(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	rechargeRepo := mocks.NewMockRechargeRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)
	svc := NewReportingService(walletRepo, mocks.NewMockLedgerRepository(ctrl), rechargeRepo, transactor)

	tx := &mockTx{}
	runInTx(transactor, tx)
	rechargeRepo.EXPECT().ListByCustomer(gomock.Any(), tx, int64(7), gomock.Any()).Return(nil, nil)
	walletRepo.EXPECT().GetByCustomerID(gomock.Any(), tx, int64(7)).Return(nil, nil)

	summary, err := svc.GetCustomerSummary(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, summary.Wallet)
	assert.True(t, summary.Balance.IsZero())
	assert.NotNil(t, summary.RecentEntries)
	assert.NotNil(t, summary.PendingRecharges)
}

func TestReportingService_GetWalletStatistics(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	svc := NewReportingService(walletRepo, nil, nil, nil)

	walletRepo.EXPECT().GetStats(gomock.Any()).Return(&ports.WalletStats{TotalWallets: 3, ActiveWallets: 2, TotalBalance: dec(900)}, nil)

	stats, err := svc.GetWalletStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalWallets)
}

func TestReportingService_GetWalletStatistics_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	walletRepo := mocks.NewMockWalletRepository(ctrl)
	svc := NewReportingService(walletRepo, nil, nil, nil)

	walletRepo.EXPECT().GetStats(gomock.Any()).Return(nil, errors.New("db down"))

	_, err := svc.GetWalletStatistics(context.Background())
	assert.True(t, apperror.HasCode(err, "SYS_001"))
}
