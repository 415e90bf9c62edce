//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"customer-wallet-ledger/config"
	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/internal/service"
	"customer-wallet-ledger/internal/testutil"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pgServices struct {
	wallets    *WalletRepo
	ledgerRepo *LedgerRepo
	recharges  *RechargeRepo
	ledger     *service.LedgerServiceImpl
	recharge   *service.RechargeServiceImpl
	settlement *service.SettlementServiceImpl
}

func newPGServices(t *testing.T) (*pgServices, func(customerID int64, number, total, walletUsed string) int64) {
	t.Helper()
	pool := testutil.SetupTestDB(t)

	txr := NewTransactor(pool, config.LedgerConfig{TxTimeout: 5 * time.Second, MaxRetries: 5}, zerolog.Nop())
	audit := NewAuditRepository(pool)
	s := &pgServices{
		wallets:    NewWalletRepo(pool),
		ledgerRepo: NewLedgerRepo(pool),
		recharges:  NewRechargeRepo(pool),
	}
	s.ledger = service.NewLedgerService(s.wallets, s.ledgerRepo, txr, "IQD", zerolog.Nop())
	s.recharge = service.NewRechargeService(s.recharges, audit, s.ledger, txr, nil, nil,
		service.RechargeConfig{Currency: "IQD"}, zerolog.Nop())
	s.settlement = service.NewSettlementService(NewOrderRepo(pool), audit, s.ledger, txr, nil, zerolog.Nop())

	seed := func(customerID int64, number, total, walletUsed string) int64 {
		return testutil.SeedOrder(t, pool, customerID, number, total, walletUsed)
	}
	return s, seed
}

func TestIntegration_ConcurrentSettlementsNeverOverdraw(t *testing.T) {
	s, seedOrder := newPGServices(t)
	ctx := context.Background()
	adminID := int64(9)

	_, err := s.ledger.Append(ctx, ports.AppendRequest{
		CustomerID: 4004,
		Amount:     decimal.NewFromInt(100),
		Kind:       domain.EntryKindAdminCredit,
		Reason:     "opening balance",
		Actor:      &adminID,
	})
	require.NoError(t, err)

	orders := []int64{
		seedOrder(4004, "ORD-A", "60", "60"),
		seedOrder(4004, "ORD-B", "60", "60"),
	}

	errs := make([]error, len(orders))
	var wg sync.WaitGroup
	for i, id := range orders {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = s.settlement.SettleApprovedOrder(ctx, ports.SettleOrderRequest{OrderID: id, ReviewerID: adminID})
		}(i, id)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.HasCode(err, apperror.CodeInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	bal, err := s.ledger.GetBalance(ctx, 4004)
	require.NoError(t, err)
	assert.Equal(t, "40", bal.Balance.String())

	sum, err := s.ledgerRepo.SumByWallet(ctx, nil, bal.WalletID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(bal.Balance))
}

func TestIntegration_ConcurrentApprovalsCreditOnce(t *testing.T) {
	s, _ := newPGServices(t)
	ctx := context.Background()

	req := &domain.RechargeRequest{
		RequestNumber: domain.NewRequestNumber(time.Now()),
		CustomerID:    5005,
		Amount:        decimal.NewFromInt(250),
		Currency:      "IQD",
		PaymentMethod: domain.PaymentMethodBankTransfer,
		Status:        domain.RechargeStatusPending,
	}
	require.NoError(t, s.recharges.Create(ctx, req))

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.recharge.Approve(ctx, ports.ReviewRechargeRequest{RequestID: req.ID, AdminID: int64(100 + i)})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState), "got %v", err)
	}
	assert.Equal(t, 1, ok)

	bal, err := s.ledger.GetBalance(ctx, 5005)
	require.NoError(t, err)
	assert.Equal(t, "250", bal.Balance.String())
}
