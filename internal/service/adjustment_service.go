package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"
	"customer-wallet-ledger/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const maxReasonLength = 500

// AdjustmentServiceImpl implements ports.AdjustmentService.
type AdjustmentServiceImpl struct {
	walletRepo ports.WalletRepository
	auditRepo  ports.AuditRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	notifier   ports.Notifier
	log        zerolog.Logger
}

// NewAdjustmentService creates a new AdjustmentServiceImpl. notifier may be nil.
func NewAdjustmentService(
	walletRepo ports.WalletRepository,
	auditRepo ports.AuditRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	notifier ports.Notifier,
	log zerolog.Logger,
) *AdjustmentServiceImpl {
	return &AdjustmentServiceImpl{
		walletRepo: walletRepo,
		auditRepo:  auditRepo,
		ledger:     ledger,
		transactor: transactor,
		notifier:   notifier,
		log:        log,
	}
}

func validateReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", apperror.Validation("reason is required")
	}
	if len(reason) > maxReasonLength {
		return "", apperror.Validation("reason is too long")
	}
	return reason, nil
}

// toAppendRequest maps an operator adjustment onto a ledger append.
func toAppendRequest(req ports.AdjustRequest, reason string) (ports.AppendRequest, error) {
	if req.CustomerID <= 0 {
		return ports.AppendRequest{}, apperror.Validation("customer id is required")
	}
	if !req.Amount.Equal(req.Amount.Truncate(money.Scale)) {
		return ports.AppendRequest{}, apperror.Validation(fmt.Sprintf("amount has more than %d fractional digits", money.Scale))
	}
	if req.Amount.Abs().GreaterThan(money.MaxStorable) {
		return ports.AppendRequest{}, apperror.Validation(fmt.Sprintf("amount exceeds the maximum of %s", money.Format(money.MaxStorable)))
	}

	adminID := req.AdminID
	out := ports.AppendRequest{CustomerID: req.CustomerID, Actor: &adminID, Reason: reason}
	switch req.Type {
	case ports.AdjustmentCredit:
		if !req.Amount.IsPositive() {
			return ports.AppendRequest{}, apperror.Validation("amount must be greater than zero")
		}
		out.Kind = domain.EntryKindAdminCredit
		out.Amount = req.Amount
	case ports.AdjustmentDebit:
		if !req.Amount.IsPositive() {
			return ports.AppendRequest{}, apperror.Validation("amount must be greater than zero")
		}
		out.Kind = domain.EntryKindAdminDebit
		out.Amount = req.Amount.Neg()
	case ports.AdjustmentSetBalance:
		if req.Amount.IsNegative() {
			return ports.AppendRequest{}, apperror.Validation("target balance must not be negative")
		}
		out.Kind = domain.EntryKindAdminSetBalance
		out.TargetBalance = req.Amount
		out.Reason = fmt.Sprintf("%s (set balance to %s)", reason, money.Format(req.Amount))
	default:
		return ports.AppendRequest{}, apperror.Validation(fmt.Sprintf("unknown adjustment type %q", req.Type))
	}
	return out, nil
}

// Adjust applies a manual credit, debit or balance override and audits it
// in the same transaction.
func (s *AdjustmentServiceImpl) Adjust(ctx context.Context, req ports.AdjustRequest) (*ports.AdjustmentOutcome, error) {
	reason, err := validateReason(req.Reason)
	if err != nil {
		return nil, err
	}
	appendReq, err := toAppendRequest(req, reason)
	if err != nil {
		return nil, err
	}

	var outcome *ports.AdjustmentOutcome
	err = s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		outcome = nil

		res, err := s.ledger.AppendTx(ctx, tx, appendReq)
		if err != nil {
			return err
		}

		details := map[string]string{
			"type":           string(req.Type),
			"amount":         req.Amount.String(),
			"reason":         reason,
			"ledger_entry":   strconv.FormatInt(res.Entry.ID, 10),
			"delta":          res.Entry.Amount.String(),
			"balance_before": res.Entry.BalanceBefore().String(),
			"balance_after":  res.Entry.BalanceAfter.String(),
		}
		audit := newAuditLog(req.AdminID, domain.AuditActionAdjustBalance, "customer",
			strconv.FormatInt(req.CustomerID, 10), req.ClientIP, details)
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return apperror.InternalError(fmt.Errorf("write audit log: %w", err))
		}

		outcome = &ports.AdjustmentOutcome{Entry: res.Entry, Balance: res.Wallet.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("customer_id", req.CustomerID).
		Int64("admin_id", req.AdminID).
		Int64("entry_id", outcome.Entry.ID).
		Str("type", string(req.Type)).
		Str("delta", outcome.Entry.Amount.String()).
		Msg("balance adjusted")

	event := domain.NewEvent(domain.EventBalanceAdjusted, req.CustomerID)
	event.WalletID = outcome.Entry.WalletID
	event.Amount = outcome.Entry.Amount
	event.Balance = outcome.Balance
	event.Attributes = map[string]string{"type": string(req.Type), "reason": reason}
	publishAfterCommit(ctx, s.notifier, s.log, event)

	return outcome, nil
}

// SetWalletActive soft-deactivates or reactivates a customer's wallet.
// Inactive wallets refuse every append; reads keep working.
func (s *AdjustmentServiceImpl) SetWalletActive(ctx context.Context, req ports.WalletStatusRequest) (*domain.Wallet, error) {
	if req.CustomerID <= 0 {
		return nil, apperror.Validation("customer id is required")
	}
	reason, err := validateReason(req.Reason)
	if err != nil {
		return nil, err
	}

	var updated *domain.Wallet
	err = s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		updated = nil

		wallet, err := s.walletRepo.GetByCustomerIDForUpdate(ctx, tx, req.CustomerID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			return apperror.ErrNotFound("wallet")
		}
		if wallet.IsActive == req.Active {
			if req.Active {
				return apperror.ErrInvalidState("wallet is already active")
			}
			return apperror.ErrInvalidState("wallet is already deactivated")
		}

		if err := s.walletRepo.SetActive(ctx, tx, wallet.ID, req.Active); err != nil {
			return apperror.InternalError(fmt.Errorf("set wallet status: %w", err))
		}
		wallet.IsActive = req.Active

		audit := newAuditLog(req.AdminID, domain.AuditActionWalletStatus, "wallet",
			strconv.FormatInt(wallet.ID, 10), req.ClientIP, map[string]string{
				"customer_id": strconv.FormatInt(req.CustomerID, 10),
				"active":      strconv.FormatBool(req.Active),
				"reason":      reason,
			})
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return apperror.InternalError(fmt.Errorf("write audit log: %w", err))
		}

		updated = wallet
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("wallet_id", updated.ID).
		Int64("customer_id", updated.CustomerID).
		Int64("admin_id", req.AdminID).
		Bool("active", updated.IsActive).
		Msg("wallet status changed")

	return updated, nil
}
