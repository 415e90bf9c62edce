package service

import (
	"context"
	"fmt"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const summaryRecentEntries = 10

// reportingService implements ports.ReportingService.
type reportingService struct {
	walletRepo   ports.WalletRepository
	ledgerRepo   ports.LedgerRepository
	rechargeRepo ports.RechargeRepository
	transactor   ports.DBTransactor
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	rechargeRepo ports.RechargeRepository,
	transactor ports.DBTransactor,
) ports.ReportingService {
	return &reportingService{
		walletRepo:   walletRepo,
		ledgerRepo:   ledgerRepo,
		rechargeRepo: rechargeRepo,
		transactor:   transactor,
	}
}

// GetCustomerSummary reads the wallet, recent entries, pending requests and
// totals from a single read-only snapshot.
func (s *reportingService) GetCustomerSummary(ctx context.Context, customerID int64) (*ports.CustomerSummary, error) {
	var summary *ports.CustomerSummary
	err := s.transactor.WithinTx(ctx, ports.TxOptions{ReadOnly: true}, func(ctx context.Context, tx pgx.Tx) error {
		out := &ports.CustomerSummary{
			Balance:        decimal.Zero,
			RecentEntries:  []domain.LedgerEntry{},
			TotalRecharged: decimal.Zero,
			TotalSpent:     decimal.Zero,
		}

		pending := domain.RechargeStatusPending
		recharges, err := s.rechargeRepo.ListByCustomer(ctx, tx, customerID, &pending)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("list pending recharges: %w", err))
		}
		out.PendingRecharges = recharges
		if out.PendingRecharges == nil {
			out.PendingRecharges = []domain.RechargeRequest{}
		}

		wallet, err := s.walletRepo.GetByCustomerID(ctx, tx, customerID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("get wallet: %w", err))
		}
		if wallet == nil {
			summary = out
			return nil
		}
		out.Wallet = wallet
		out.Balance = wallet.Balance

		entries, err := s.ledgerRepo.ListByWallet(ctx, tx, ports.LedgerListParams{
			WalletID: wallet.ID,
			Limit:    summaryRecentEntries,
		})
		if err != nil {
			return apperror.InternalError(fmt.Errorf("list recent entries: %w", err))
		}
		if entries != nil {
			out.RecentEntries = entries
		}

		totals, err := s.ledgerRepo.GetTotals(ctx, tx, wallet.ID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("ledger totals: %w", err))
		}
		out.TotalRecharged = totals.Recharged
		out.TotalSpent = totals.Spent

		summary = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetWalletStatistics returns system-wide wallet figures.
func (s *reportingService) GetWalletStatistics(ctx context.Context) (*ports.WalletStats, error) {
	stats, err := s.walletRepo.GetStats(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return stats, nil
}
