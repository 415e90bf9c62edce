package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *Store
	txr       *Transactor
	wallets   *WalletRepo
	ledger    *LedgerRepo
	recharges *RechargeRepo
	orders    *OrderRepo
}

func newFixture(timeout time.Duration) *fixture {
	store := New()
	return &fixture{
		store:     store,
		txr:       NewTransactor(store, timeout, zerolog.Nop()),
		wallets:   NewWalletRepo(store),
		ledger:    NewLedgerRepo(store),
		recharges: NewRechargeRepo(store),
		orders:    NewOrderRepo(store),
	}
}

// credit appends amount to the customer's wallet the way the ledger service does.
func (f *fixture) credit(ctx context.Context, tx pgx.Tx, customerID int64, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	w, err := f.wallets.GetOrCreateForUpdate(ctx, tx, customerID, "IQD")
	if err != nil {
		return nil, err
	}
	e := &domain.LedgerEntry{
		WalletID:     w.ID,
		Amount:       amount,
		BalanceAfter: w.Balance.Add(amount),
		Kind:         domain.EntryKindAdminCredit,
		Reason:       "test",
	}
	if err := f.ledger.Create(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, f.wallets.UpdateBalance(ctx, tx, w.ID, e.BalanceAfter)
}

func TestStore_CommitMakesWritesVisible(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()

	err := f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		_, err := f.credit(ctx, tx, 1001, decimal.NewFromInt(500))
		if err != nil {
			return err
		}
		// Invisible outside the transaction until commit.
		w, err := f.wallets.GetByCustomerID(ctx, nil, 1001)
		require.NoError(t, err)
		assert.Nil(t, w)

		// Visible to the transaction itself.
		sum, err := f.ledger.SumByWallet(ctx, tx, 1)
		require.NoError(t, err)
		assert.Equal(t, "500", sum.String())
		return nil
	})
	require.NoError(t, err)

	w, err := f.wallets.GetByCustomerID(ctx, nil, 1001)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "500", w.Balance.String())

	sum, err := f.ledger.SumByWallet(ctx, nil, w.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(w.Balance))
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := f.credit(ctx, tx, 1001, decimal.NewFromInt(500)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	w, err := f.wallets.GetByCustomerID(ctx, nil, 1001)
	require.NoError(t, err)
	assert.Nil(t, w)

	stats, err := f.wallets.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

func TestStore_WalletLockSerializesWriters(t *testing.T) {
	f := newFixture(5 * time.Second)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
				_, err := f.credit(ctx, tx, 1001, decimal.NewFromInt(10))
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	w, err := f.wallets.GetByCustomerID(ctx, nil, 1001)
	require.NoError(t, err)
	assert.Equal(t, "200", w.Balance.String())

	entries, err := f.ledger.ListByWallet(ctx, nil, ports.LedgerListParams{WalletID: w.ID, Limit: 100})
	require.NoError(t, err)
	require.Len(t, entries, workers)
	for i := 1; i < len(entries); i++ {
		// Newest first, and each balance_after chains onto the previous one.
		assert.True(t, entries[i-1].BalanceBefore().Equal(entries[i].BalanceAfter))
	}
}

func TestStore_LockWaitTimesOut(t *testing.T) {
	f := newFixture(50 * time.Millisecond)
	ctx := context.Background()

	holding := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = NewTransactor(f.store, 5*time.Second, zerolog.Nop()).WithinTx(ctx, ports.TxOptions{},
			func(ctx context.Context, tx pgx.Tx) error {
				_, err := f.wallets.GetOrCreateForUpdate(ctx, tx, 1001, "IQD")
				close(holding)
				<-released
				return err
			})
	}()
	<-holding

	err := f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		_, err := f.wallets.GetOrCreateForUpdate(ctx, tx, 1001, "IQD")
		return err
	})
	close(released)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SYS_002", appErr.Code)
}

func TestStore_DuplicateReferenceIsInvalidState(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()
	refID := int64(31)

	approve := func() error {
		return f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
			w, err := f.wallets.GetOrCreateForUpdate(ctx, tx, 1001, "IQD")
			if err != nil {
				return err
			}
			return f.ledger.Create(ctx, tx, &domain.LedgerEntry{
				WalletID:      w.ID,
				Amount:        decimal.NewFromInt(100),
				BalanceAfter:  w.Balance.Add(decimal.NewFromInt(100)),
				Kind:          domain.EntryKindRechargeApproved,
				ReferenceType: domain.ReferenceRechargeRequest,
				ReferenceID:   &refID,
			})
		})
	}

	require.NoError(t, approve())
	err := approve()
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestStore_LedgerConstraints(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()

	err := f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		w, err := f.wallets.GetOrCreateForUpdate(ctx, tx, 1001, "IQD")
		require.NoError(t, err)

		assert.Error(t, f.ledger.Create(ctx, tx, &domain.LedgerEntry{
			WalletID: w.ID, Amount: decimal.Zero, Kind: domain.EntryKindAdminCredit,
		}))
		assert.Error(t, f.ledger.Create(ctx, tx, &domain.LedgerEntry{
			WalletID: w.ID, Amount: decimal.NewFromInt(-5), BalanceAfter: decimal.NewFromInt(-5), Kind: domain.EntryKindAdminDebit,
		}))
		assert.Error(t, f.wallets.UpdateBalance(ctx, tx, w.ID, decimal.NewFromInt(-1)))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_WriteWithoutTransactionIsRejected(t *testing.T) {
	f := newFixture(time.Second)
	err := f.ledger.Create(context.Background(), nil, &domain.LedgerEntry{Amount: decimal.NewFromInt(1)})
	assert.Error(t, err)
}

func TestStore_RawSQLFailsCleanly(t *testing.T) {
	f := newFixture(time.Second)

	err := f.txr.WithinTx(context.Background(), ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue("UPDATE wallets SET is_active = FALSE")
		br := tx.SendBatch(ctx, batch)
		require.NotNil(t, br)

		_, err := br.Exec()
		assert.ErrorIs(t, err, errSQLUnsupported)
		_, err = br.Query()
		assert.ErrorIs(t, err, errSQLUnsupported)
		assert.ErrorIs(t, br.QueryRow().Scan(), errSQLUnsupported)
		assert.ErrorIs(t, br.Close(), errSQLUnsupported)

		assert.ErrorIs(t, tx.QueryRow(ctx, "SELECT 1").Scan(), errSQLUnsupported)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ReadOnlySnapshotIgnoresLaterCommits(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()

	require.NoError(t, f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		_, err := f.credit(ctx, tx, 1001, decimal.NewFromInt(100))
		return err
	}))

	err := f.txr.WithinTx(ctx, ports.TxOptions{ReadOnly: true}, func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, wtx pgx.Tx) error {
			_, err := f.credit(ctx, wtx, 1001, decimal.NewFromInt(50))
			return err
		}))

		w, err := f.wallets.GetByCustomerID(ctx, tx, 1001)
		require.NoError(t, err)
		assert.Equal(t, "100", w.Balance.String())

		sum, err := f.ledger.SumByWallet(ctx, tx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, "100", sum.String())

		_, err = f.wallets.GetOrCreateForUpdate(ctx, tx, 1001, "IQD")
		assert.Error(t, err, "writes are refused in a read-only transaction")
		return nil
	})
	require.NoError(t, err)

	w, err := f.wallets.GetByCustomerID(ctx, nil, 1001)
	require.NoError(t, err)
	assert.Equal(t, "150", w.Balance.String())
}

func TestRechargeRepo_ReviewLifecycle(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()

	req := &domain.RechargeRequest{
		RequestNumber: "WR1",
		CustomerID:    1001,
		Amount:        decimal.NewFromInt(50000),
		Currency:      "IQD",
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.RechargeStatusPending,
	}
	require.NoError(t, f.recharges.Create(ctx, req))
	assert.Equal(t, int64(1), req.ID)

	dup := *req
	assert.Error(t, f.recharges.Create(ctx, &dup), "request numbers are unique")

	admin := int64(9)
	err := f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := f.recharges.GetByIDForUpdate(ctx, tx, req.ID)
		require.NoError(t, err)
		locked.Status = domain.RechargeStatusRejected
		locked.RejectionReason = "receipt unreadable"
		locked.ProcessedBy = &admin
		return f.recharges.UpdateReview(ctx, tx, locked)
	})
	require.NoError(t, err)

	got, err := f.recharges.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RechargeStatusRejected, got.Status)

	err = f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := f.recharges.GetByIDForUpdate(ctx, tx, req.ID)
		require.NoError(t, err)
		locked.Status = domain.RechargeStatusApproved
		return f.recharges.UpdateReview(ctx, tx, locked)
	})
	assert.Error(t, err, "terminal requests cannot be reviewed again")

	pending := domain.RechargeStatusPending
	list, total, err := f.recharges.List(ctx, ports.RechargeListParams{Status: &pending, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestOrderRepo_SeedAndReview(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()

	id := f.store.SeedOrder(domain.Order{
		OrderNumber: "ORD-1",
		CustomerID:  1001,
		TotalAmount: decimal.NewFromInt(15000),
		WalletUsed:  decimal.NewFromInt(7000),
	})

	o, err := f.orders.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, "8000", o.RemainingAmount.String())
	assert.True(t, o.IsPendingReview())

	err = f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := f.orders.GetByIDForUpdate(ctx, tx, id)
		require.NoError(t, err)
		locked.FinancialReviewStatus = domain.FinancialReviewApproved
		return f.orders.UpdateReview(ctx, tx, locked)
	})
	require.NoError(t, err)

	o, err = f.orders.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.FinancialReviewApproved, o.FinancialReviewStatus)
}

func TestAuditRepo_InTxCommitsWithTransaction(t *testing.T) {
	f := newFixture(time.Second)
	ctx := context.Background()
	audits := NewAuditRepository(f.store)

	_ = f.txr.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, audits.Create(ctx, tx, &domain.AuditLog{Action: domain.AuditActionAdjustBalance}))
		return errors.New("rolled back")
	})
	assert.Empty(t, f.store.AuditLogs())

	require.NoError(t, audits.Create(ctx, nil, &domain.AuditLog{Action: domain.AuditActionViewStats}))
	require.Len(t, f.store.AuditLogs(), 1)
}
