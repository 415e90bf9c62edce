package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"
	"customer-wallet-ledger/pkg/money"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	orderRepo  ports.OrderRepository
	auditRepo  ports.AuditRepository
	ledger     ports.LedgerService
	transactor ports.DBTransactor
	notifier   ports.Notifier
	log        zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl. notifier may be nil.
func NewSettlementService(
	orderRepo ports.OrderRepository,
	auditRepo ports.AuditRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	notifier ports.Notifier,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		orderRepo:  orderRepo,
		auditRepo:  auditRepo,
		ledger:     ledger,
		transactor: transactor,
		notifier:   notifier,
		log:        log,
	}
}

func (s *SettlementServiceImpl) lockPendingOrder(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if !order.IsPendingReview() {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("order financial review is already %s", order.FinancialReviewStatus))
	}
	return order, nil
}

// externalMismatchNote describes a reported external payment that differs
// from the amount still owed. It returns "" when they agree.
func externalMismatchNote(order *domain.Order, reported *decimal.Decimal) string {
	if reported == nil || reported.Equal(order.RemainingAmount) {
		return ""
	}
	return fmt.Sprintf("external payment mismatch: reported %s, expected %s",
		money.Format(*reported), money.Format(order.RemainingAmount))
}

func joinNotes(notes ...string) string {
	parts := make([]string, 0, len(notes))
	for _, n := range notes {
		if n = strings.TrimSpace(n); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "\n")
}

// SettleApprovedOrder draws the order's wallet portion from the customer's
// wallet and approves the financial review in one transaction.
func (s *SettlementServiceImpl) SettleApprovedOrder(ctx context.Context, req ports.SettleOrderRequest) (*ports.SettlementOutcome, error) {
	if req.OrderID <= 0 {
		return nil, apperror.Validation("order id is required")
	}
	if req.ReportedExternalAmount != nil && req.ReportedExternalAmount.IsNegative() {
		return nil, apperror.Validation("reported external amount must not be negative")
	}
	if len(req.Notes) > maxNotesLength {
		return nil, apperror.Validation("notes are too long")
	}

	var (
		outcome  *ports.SettlementOutcome
		mismatch string
	)
	err := s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		outcome, mismatch = nil, ""

		order, err := s.lockPendingOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		reviewerID := req.ReviewerID
		result := &ports.SettlementOutcome{}
		if order.UsesWallet() {
			res, err := s.ledger.AppendTx(ctx, tx, ports.AppendRequest{
				CustomerID: order.CustomerID,
				Amount:     order.WalletUsed.Neg(),
				Kind:       domain.EntryKindOrderPayment,
				Reference:  &domain.Reference{Type: domain.ReferenceOrder, ID: order.ID},
				Reason:     "order " + order.OrderNumber,
				Actor:      &reviewerID,
			})
			if err != nil {
				return err
			}
			result.Entry = res.Entry
			result.Balance = res.Wallet.Balance
		}

		mismatch = externalMismatchNote(order, req.ReportedExternalAmount)

		now := time.Now().UTC()
		order.FinancialReviewStatus = domain.FinancialReviewApproved
		order.FinancialReviewedAt = &now
		order.FinancialReviewerID = &reviewerID
		order.FinancialNotes = joinNotes(req.Notes, mismatch)
		if err := s.orderRepo.UpdateReview(ctx, tx, order); err != nil {
			return apperror.InternalError(fmt.Errorf("update order review: %w", err))
		}

		details := map[string]string{
			"customer_id":  strconv.FormatInt(order.CustomerID, 10),
			"order_number": order.OrderNumber,
			"wallet_used":  order.WalletUsed.String(),
			"remaining":    order.RemainingAmount.String(),
		}
		if result.Entry != nil {
			details["ledger_entry"] = strconv.FormatInt(result.Entry.ID, 10)
		}
		if req.ReportedExternalAmount != nil {
			details["reported_external_amount"] = req.ReportedExternalAmount.String()
		}
		if mismatch != "" {
			details["mismatch"] = mismatch
		}
		audit := newAuditLog(reviewerID, domain.AuditActionOrderSettle, "order",
			strconv.FormatInt(order.ID, 10), req.ClientIP, details)
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return apperror.InternalError(fmt.Errorf("write audit log: %w", err))
		}

		result.Order = order
		outcome = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Entry == nil {
		bal, err := s.ledger.GetBalance(ctx, outcome.Order.CustomerID)
		if err != nil {
			s.log.Warn().Err(err).Int64("customer_id", outcome.Order.CustomerID).Msg("failed to read balance after settlement")
		} else {
			outcome.Balance = bal.Balance
		}
	}

	logEvt := s.log.Info()
	if mismatch != "" {
		logEvt = s.log.Warn().Str("mismatch", mismatch)
	}
	logEvt.
		Int64("order_id", outcome.Order.ID).
		Int64("customer_id", outcome.Order.CustomerID).
		Int64("reviewer_id", req.ReviewerID).
		Str("wallet_used", outcome.Order.WalletUsed.String()).
		Msg("order settled")

	event := domain.NewEvent(domain.EventOrderSettled, outcome.Order.CustomerID)
	event.Amount = outcome.Order.WalletUsed.Neg()
	event.Balance = outcome.Balance
	event.ReferenceType = domain.ReferenceOrder
	event.ReferenceID = outcome.Order.ID
	if outcome.Entry != nil {
		event.WalletID = outcome.Entry.WalletID
	}
	if mismatch != "" {
		event.Attributes = map[string]string{"mismatch": mismatch}
	}
	publishAfterCommit(ctx, s.notifier, s.log, event)

	return outcome, nil
}

// RejectOrder closes the financial review as rejected. The ledger is not touched.
func (s *SettlementServiceImpl) RejectOrder(ctx context.Context, req ports.RejectOrderRequest) (*domain.Order, error) {
	if req.OrderID <= 0 {
		return nil, apperror.Validation("order id is required")
	}
	if len(req.Notes) > maxNotesLength {
		return nil, apperror.Validation("notes are too long")
	}

	var rejected *domain.Order
	err := s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		rejected = nil

		order, err := s.lockPendingOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		reviewerID := req.ReviewerID
		order.FinancialReviewStatus = domain.FinancialReviewRejected
		order.FinancialReviewedAt = &now
		order.FinancialReviewerID = &reviewerID
		order.FinancialNotes = strings.TrimSpace(req.Notes)
		if err := s.orderRepo.UpdateReview(ctx, tx, order); err != nil {
			return apperror.InternalError(fmt.Errorf("update order review: %w", err))
		}

		audit := newAuditLog(reviewerID, domain.AuditActionOrderReject, "order",
			strconv.FormatInt(order.ID, 10), req.ClientIP, map[string]string{
				"customer_id":  strconv.FormatInt(order.CustomerID, 10),
				"order_number": order.OrderNumber,
				"notes":        order.FinancialNotes,
			})
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return apperror.InternalError(fmt.Errorf("write audit log: %w", err))
		}

		rejected = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("order_id", rejected.ID).
		Int64("customer_id", rejected.CustomerID).
		Int64("reviewer_id", req.ReviewerID).
		Msg("order rejected")

	event := domain.NewEvent(domain.EventOrderRejected, rejected.CustomerID)
	event.ReferenceType = domain.ReferenceOrder
	event.ReferenceID = rejected.ID
	publishAfterCommit(ctx, s.notifier, s.log, event)

	return rejected, nil
}
