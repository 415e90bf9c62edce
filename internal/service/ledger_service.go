package service

import (
	"context"
	"fmt"
	"strings"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"
	"customer-wallet-ledger/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// LedgerServiceImpl implements ports.LedgerService. It is the only code path
// that writes ledger entries or cached balances.
type LedgerServiceImpl struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	currency   string
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl. Wallets are created in currency.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	currency string,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		currency:   currency,
		log:        log,
	}
}

func validateAppend(req ports.AppendRequest) error {
	if !req.Kind.Valid() {
		return apperror.Validation(fmt.Sprintf("unknown entry kind %q", req.Kind))
	}
	if req.Kind.RequiresReason() && strings.TrimSpace(req.Reason) == "" {
		return apperror.Validation("reason is required for manual adjustments")
	}
	if req.Kind == domain.EntryKindAdminSetBalance {
		if req.TargetBalance.IsNegative() {
			return apperror.Validation("target balance must not be negative")
		}
		if req.TargetBalance.GreaterThan(money.MaxStorable) {
			return apperror.Validation("target balance exceeds the maximum storable amount")
		}
		return nil
	}
	switch {
	case req.Amount.IsZero():
		return apperror.Validation("amount must not be zero")
	case req.Amount.Abs().GreaterThan(money.MaxStorable):
		return apperror.Validation("amount exceeds the maximum storable amount")
	case req.Kind.IsDebit() && !req.Amount.IsNegative():
		return apperror.Validation(fmt.Sprintf("%s entries must be negative", req.Kind))
	case req.Kind.IsCredit() && !req.Amount.IsPositive():
		return apperror.Validation(fmt.Sprintf("%s entries must be positive", req.Kind))
	}
	return nil
}

// AppendTx locks the customer's wallet (creating it on first use), writes one
// entry and moves the cached balance by the same amount.
func (s *LedgerServiceImpl) AppendTx(ctx context.Context, tx pgx.Tx, req ports.AppendRequest) (*ports.AppendResult, error) {
	if err := validateAppend(req); err != nil {
		return nil, err
	}

	wallet, err := s.walletRepo.GetOrCreateForUpdate(ctx, tx, req.CustomerID, s.currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if !wallet.IsActive {
		return nil, apperror.ErrInvalidState("wallet is deactivated")
	}

	amount := req.Amount
	var meta map[string]string
	if req.Kind == domain.EntryKindAdminSetBalance {
		amount = req.TargetBalance.Sub(wallet.Balance)
		if amount.IsZero() {
			return nil, apperror.Validation("target balance equals the current balance")
		}
		meta = map[string]string{
			domain.MetaTargetBalance:   req.TargetBalance.String(),
			domain.MetaPreviousBalance: wallet.Balance.String(),
		}
	}

	if !wallet.CanCover(amount) {
		return nil, apperror.ErrInsufficientBalance()
	}
	newBalance := wallet.Balance.Add(amount)
	if newBalance.GreaterThan(money.MaxStorable) {
		return nil, apperror.Validation("resulting balance exceeds the maximum storable amount")
	}

	entry := &domain.LedgerEntry{
		WalletID:     wallet.ID,
		Amount:       amount,
		BalanceAfter: newBalance,
		Kind:         req.Kind,
		Reason:       req.Reason,
		CreatedBy:    req.Actor,
		Metadata:     meta,
	}
	if req.Reference != nil {
		refID := req.Reference.ID
		entry.ReferenceType = req.Reference.Type
		entry.ReferenceID = &refID
	}

	if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}
	if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update cached balance: %w", err))
	}
	wallet.Balance = newBalance

	s.log.Debug().
		Int64("wallet_id", wallet.ID).
		Int64("customer_id", req.CustomerID).
		Int64("entry_id", entry.ID).
		Str("kind", string(req.Kind)).
		Str("amount", amount.String()).
		Msg("ledger entry appended")

	return &ports.AppendResult{Entry: entry, Wallet: wallet}, nil
}

// Append runs AppendTx in its own transaction.
func (s *LedgerServiceImpl) Append(ctx context.Context, req ports.AppendRequest) (*ports.AppendResult, error) {
	var result *ports.AppendResult
	err := s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		result, err = s.AppendTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBalance returns the cached balance. A customer without a wallet has a balance of zero.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, customerID int64) (*ports.BalanceView, error) {
	wallet, err := s.walletRepo.GetByCustomerID(ctx, nil, customerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return &ports.BalanceView{
			CustomerID: customerID,
			Balance:    decimal.Zero,
			Currency:   s.currency,
			IsActive:   true,
		}, nil
	}
	return &ports.BalanceView{
		CustomerID: customerID,
		WalletID:   wallet.ID,
		Balance:    wallet.Balance,
		Currency:   wallet.Currency,
		IsActive:   wallet.IsActive,
	}, nil
}

// GetHistory returns one page of entries, newest first. NextCursor is set
// only when older entries remain.
func (s *LedgerServiceImpl) GetHistory(ctx context.Context, customerID int64, page ports.HistoryPage) (*ports.HistoryResult, error) {
	if page.BeforeID < 0 {
		return nil, apperror.Validation("cursor must not be negative")
	}
	limit := page.Limit
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	wallet, err := s.walletRepo.GetByCustomerID(ctx, nil, customerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return &ports.HistoryResult{Entries: []domain.LedgerEntry{}}, nil
	}

	// Fetch one extra row to learn whether another page exists.
	entries, err := s.ledgerRepo.ListByWallet(ctx, nil, ports.LedgerListParams{
		WalletID: wallet.ID,
		BeforeID: page.BeforeID,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list ledger entries: %w", err))
	}

	result := &ports.HistoryResult{Entries: entries}
	if len(entries) > limit {
		result.Entries = entries[:limit]
		next := result.Entries[limit-1].ID
		result.NextCursor = &next
	}
	if result.Entries == nil {
		result.Entries = []domain.LedgerEntry{}
	}
	return result, nil
}
