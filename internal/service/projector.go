package service

import (
	"context"
	"fmt"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// BalanceProjector recomputes cached balances from the ledger.
type BalanceProjector struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	notifier   ports.Notifier
	log        zerolog.Logger
}

// NewBalanceProjector creates a new BalanceProjector. notifier may be nil.
func NewBalanceProjector(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	notifier ports.Notifier,
	log zerolog.Logger,
) *BalanceProjector {
	return &BalanceProjector{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		notifier:   notifier,
		log:        log,
	}
}

// Resync locks the wallet, sums its ledger and overwrites the cached balance
// with the sum. A non-zero drift is logged and published after commit.
func (p *BalanceProjector) Resync(ctx context.Context, walletID int64) (*domain.Drift, error) {
	var drift *domain.Drift
	err := p.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		wallet, err := p.walletRepo.GetByIDForUpdate(ctx, tx, walletID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			return apperror.ErrNotFound("wallet")
		}

		sum, err := p.ledgerRepo.SumByWallet(ctx, tx, walletID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("sum ledger: %w", err))
		}

		syncedAt := time.Now().UTC()
		if err := p.walletRepo.MarkSynced(ctx, tx, walletID, sum, syncedAt); err != nil {
			return apperror.InternalError(fmt.Errorf("mark synced: %w", err))
		}

		drift = &domain.Drift{
			WalletID:       walletID,
			CustomerID:     wallet.CustomerID,
			PreviousCached: wallet.Balance,
			Recomputed:     sum,
			Drift:          sum.Sub(wallet.Balance),
			SyncedAt:       syncedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if drift.Detected() {
		p.log.Error().
			Int64("wallet_id", drift.WalletID).
			Int64("customer_id", drift.CustomerID).
			Str("previous_cached", drift.PreviousCached.String()).
			Str("recomputed", drift.Recomputed.String()).
			Str("drift", drift.Drift.String()).
			Msg("wallet balance drift detected and corrected")

		event := domain.NewEvent(domain.EventWalletDriftDetected, drift.CustomerID)
		event.WalletID = drift.WalletID
		event.Amount = drift.Drift
		event.Balance = drift.Recomputed
		event.Attributes = map[string]string{"previous_cached": drift.PreviousCached.String()}
		publishAfterCommit(ctx, p.notifier, p.log, event)
	}

	return drift, nil
}

// ResyncAll resyncs every wallet, one transaction per wallet. A wallet that
// fails is counted and skipped.
func (p *BalanceProjector) ResyncAll(ctx context.Context) (*ports.ResyncReport, error) {
	ids, err := p.walletRepo.ListIDs(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}

	report := &ports.ResyncReport{Drifted: []domain.Drift{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		drift, err := p.Resync(ctx, id)
		if err != nil {
			report.Failed++
			p.log.Warn().Err(err).Int64("wallet_id", id).Msg("resync failed")
			continue
		}
		report.Checked++
		if drift.Detected() {
			report.Drifted = append(report.Drifted, *drift)
		}
	}
	return report, nil
}
