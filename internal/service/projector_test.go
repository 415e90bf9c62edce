package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports/mocks"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type projectorTestDeps struct {
	p          *BalanceProjector
	walletRepo *mocks.MockWalletRepository
	ledgerRepo *mocks.MockLedgerRepository
	transactor *mocks.MockDBTransactor
	notifier   *mocks.MockNotifier
	ctrl       *gomock.Controller
}

func setupProjector(t *testing.T) *projectorTestDeps {
	ctrl := gomock.NewController(t)
	d := &projectorTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		notifier:   mocks.NewMockNotifier(ctrl),
		ctrl:       ctrl,
	}
	d.p = NewBalanceProjector(d.walletRepo, d.ledgerRepo, d.transactor, d.notifier, zerolog.Nop())
	return d
}

func TestBalanceProjector_Resync_NoDrift(t *testing.T) {
	d := setupProjector(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	runInTx(d.transactor, tx)
	d.walletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, int64(4)).
		Return(&domain.Wallet{ID: 4, CustomerID: 7, Balance: dec(300)}, nil)
	d.ledgerRepo.EXPECT().SumByWallet(gomock.Any(), tx, int64(4)).Return(dec(300), nil)
	d.walletRepo.EXPECT().MarkSynced(gomock.Any(), tx, int64(4), decimalEq{dec(300)}, gomock.Any()).Return(nil)
	// No event when nothing drifted.

	drift, err := d.p.Resync(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, drift.Detected())
	assert.True(t, drift.PreviousCached.Equal(dec(300)))
}

func TestBalanceProjector_Resync_CorrectsAndPublishesDrift(t *testing.T) {
	d := setupProjector(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	runInTx(d.transactor, tx)
	d.walletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, int64(4)).
		Return(&domain.Wallet{ID: 4, CustomerID: 7, Balance: dec(350)}, nil)
	d.ledgerRepo.EXPECT().SumByWallet(gomock.Any(), tx, int64(4)).Return(dec(300), nil)
	d.walletRepo.EXPECT().MarkSynced(gomock.Any(), tx, int64(4), decimalEq{dec(300)}, gomock.Any()).Return(nil)
	d.notifier.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e domain.Event) error {
			assert.Equal(t, domain.EventWalletDriftDetected, e.Type)
			assert.Equal(t, int64(7), e.CustomerID)
			assert.True(t, e.Amount.Equal(dec(-50)))
			return nil
		},
	)

	drift, err := d.p.Resync(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, drift.Detected())
	assert.True(t, drift.Drift.Equal(dec(-50)))
	assert.True(t, drift.Recomputed.Equal(dec(300)))
	assert.WithinDuration(t, time.Now(), drift.SyncedAt, 5*time.Second)
}

func TestBalanceProjector_Resync_UnknownWallet(t *testing.T) {
	d := setupProjector(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	runInTx(d.transactor, tx)
	d.walletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, int64(99)).Return(nil, nil)

	_, err := d.p.Resync(context.Background(), 99)
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestBalanceProjector_ResyncAll_CountsFailures(t *testing.T) {
	d := setupProjector(t)
	defer d.ctrl.Finish()

	tx := &mockTx{}
	d.walletRepo.EXPECT().ListIDs(gomock.Any()).Return([]int64{1, 2}, nil)
	runInTx(d.transactor, tx).Times(2)

	d.walletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, int64(1)).
		Return(&domain.Wallet{ID: 1, CustomerID: 10, Balance: dec(5)}, nil)
	d.ledgerRepo.EXPECT().SumByWallet(gomock.Any(), tx, int64(1)).Return(dec(5), nil)
	d.walletRepo.EXPECT().MarkSynced(gomock.Any(), tx, int64(1), gomock.Any(), gomock.Any()).Return(nil)

	d.walletRepo.EXPECT().GetByIDForUpdate(gomock.Any(), tx, int64(2)).Return(nil, errors.New("connection reset"))

	report, err := d.p.ResyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Drifted)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	projector := mocks.NewMockBalanceProjector(ctrl)
	projector.EXPECT().ResyncAll(gomock.Any()).Return(nil, nil).AnyTimes()

	r := NewReconciler(projector, 5*time.Millisecond, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
