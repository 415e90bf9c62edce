package service

import (
	"context"
	"encoding/json"
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

const (
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second

	maxNotesLength = 1000

	defaultPageSize = 20
	maxPageSize     = 100
)

// RechargeConfig holds the limits applied to customer submissions.
type RechargeConfig struct {
	Currency  string
	MaxAmount decimal.Decimal // zero means bounded only by money.MaxStorable
}

// RechargeServiceImpl implements ports.RechargeService.
type RechargeServiceImpl struct {
	rechargeRepo ports.RechargeRepository
	auditRepo    ports.AuditRepository
	ledger       ports.LedgerService
	transactor   ports.DBTransactor
	idempCache   ports.IdempotencyCache
	notifier     ports.Notifier
	cfg          RechargeConfig
	log          zerolog.Logger
}

// NewRechargeService creates a new RechargeServiceImpl. idempCache and
// notifier may be nil.
func NewRechargeService(
	rechargeRepo ports.RechargeRepository,
	auditRepo ports.AuditRepository,
	ledger ports.LedgerService,
	transactor ports.DBTransactor,
	idempCache ports.IdempotencyCache,
	notifier ports.Notifier,
	cfg RechargeConfig,
	log zerolog.Logger,
) *RechargeServiceImpl {
	return &RechargeServiceImpl{
		rechargeRepo: rechargeRepo,
		auditRepo:    auditRepo,
		ledger:       ledger,
		transactor:   transactor,
		idempCache:   idempCache,
		notifier:     notifier,
		cfg:          cfg,
		log:          log,
	}
}

func (s *RechargeServiceImpl) validateSubmit(req ports.SubmitRechargeRequest) error {
	if req.CustomerID <= 0 {
		return apperror.Validation("customer id is required")
	}
	if !req.Amount.IsPositive() {
		return apperror.Validation("amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Truncate(money.Scale)) {
		return apperror.Validation(fmt.Sprintf("amount has more than %d fractional digits", money.Scale))
	}
	if ceiling := money.Ceiling(s.cfg.MaxAmount); req.Amount.GreaterThan(ceiling) {
		return apperror.Validation(fmt.Sprintf("amount exceeds the maximum of %s", money.Format(ceiling)))
	}
	if req.Currency != s.cfg.Currency {
		return apperror.Validation(fmt.Sprintf("currency must be %s", s.cfg.Currency))
	}
	if !req.PaymentMethod.Valid() {
		return apperror.Validation(fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}
	if len(req.CustomerNotes) > maxNotesLength {
		return apperror.Validation("customer notes are too long")
	}
	return nil
}

// Submit records a pending recharge request. With an idempotency key, a
// repeated submission returns the request created by the first one.
func (s *RechargeServiceImpl) Submit(ctx context.Context, req ports.SubmitRechargeRequest) (*domain.RechargeRequest, error) {
	if err := s.validateSubmit(req); err != nil {
		return nil, err
	}

	var idempKey string
	if req.IdempotencyKey != "" && s.idempCache != nil {
		idempKey = "recharge:" + strconv.FormatInt(req.CustomerID, 10) + ":" + req.IdempotencyKey

		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, continuing without it")
		}
		if cached != nil {
			var prev domain.RechargeRequest
			if err := json.Unmarshal(cached, &prev); err == nil {
				return &prev, nil
			}
			s.log.Warn().Str("key", idempKey).Msg("discarding unreadable idempotency entry")
		}

		reserved, err := s.idempCache.Reserve(ctx, idempKey, idempotencyLockTTL)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency reserve failed, continuing without it")
		case !reserved:
			return nil, apperror.ErrInvalidState("a request with this idempotency key is already being processed")
		default:
			defer func() {
				if err := s.idempCache.Release(context.WithoutCancel(ctx), idempKey); err != nil {
					s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to release idempotency lock")
				}
			}()
		}
	}

	now := time.Now().UTC()
	recharge := &domain.RechargeRequest{
		RequestNumber:    domain.NewRequestNumber(now),
		CustomerID:       req.CustomerID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Status:           domain.RechargeStatusPending,
		CustomerNotes:    req.CustomerNotes,
		CreatedAt:        now,
	}
	if err := s.rechargeRepo.Create(ctx, recharge); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create recharge request: %w", err))
	}

	if idempKey != "" {
		if b, err := json.Marshal(recharge); err == nil {
			if err := s.idempCache.Set(ctx, idempKey, b, idempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
			}
		}
	}

	s.log.Info().
		Int64("recharge_id", recharge.ID).
		Int64("customer_id", recharge.CustomerID).
		Str("amount", recharge.Amount.String()).
		Str("payment_method", string(recharge.PaymentMethod)).
		Msg("recharge request submitted")

	return recharge, nil
}

// lockPending locks a recharge request and requires it to be pending.
func (s *RechargeServiceImpl) lockPending(ctx context.Context, tx pgx.Tx, id int64) (*domain.RechargeRequest, error) {
	r, err := s.rechargeRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock recharge request: %w", err))
	}
	if r == nil {
		return nil, apperror.ErrNotFound("recharge request")
	}
	if r.IsTerminal() {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("recharge request is already %s", r.Status))
	}
	return r, nil
}

// Approve credits the customer's wallet and marks the request approved in
// one transaction.
func (s *RechargeServiceImpl) Approve(ctx context.Context, req ports.ReviewRechargeRequest) (*ports.RechargeOutcome, error) {
	if req.RequestID <= 0 {
		return nil, apperror.Validation("recharge request id is required")
	}
	if len(req.Notes) > maxNotesLength {
		return nil, apperror.Validation("admin notes are too long")
	}

	var outcome *ports.RechargeOutcome
	err := s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		outcome = nil

		recharge, err := s.lockPending(ctx, tx, req.RequestID)
		if err != nil {
			return err
		}

		adminID := req.AdminID
		res, err := s.ledger.AppendTx(ctx, tx, ports.AppendRequest{
			CustomerID: recharge.CustomerID,
			Amount:     recharge.Amount,
			Kind:       domain.EntryKindRechargeApproved,
			Reference:  &domain.Reference{Type: domain.ReferenceRechargeRequest, ID: recharge.ID},
			Reason:     "recharge " + recharge.RequestNumber,
			Actor:      &adminID,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		entryID := res.Entry.ID
		recharge.Status = domain.RechargeStatusApproved
		recharge.AdminNotes = req.Notes
		recharge.ProcessedBy = &adminID
		recharge.LedgerEntryID = &entryID
		recharge.ApprovedAt = &now
		recharge.ProcessedAt = &now
		if err := s.rechargeRepo.UpdateReview(ctx, tx, recharge); err != nil {
			return apperror.InternalError(fmt.Errorf("update recharge request: %w", err))
		}

		audit := newAuditLog(adminID, domain.AuditActionRechargeApprove, "recharge_request",
			strconv.FormatInt(recharge.ID, 10), req.ClientIP, map[string]string{
				"customer_id":    strconv.FormatInt(recharge.CustomerID, 10),
				"amount":         recharge.Amount.String(),
				"ledger_entry":   strconv.FormatInt(entryID, 10),
				"balance_after":  res.Entry.BalanceAfter.String(),
				"request_number": recharge.RequestNumber,
			})
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return apperror.InternalError(fmt.Errorf("write audit log: %w", err))
		}

		outcome = &ports.RechargeOutcome{Request: recharge, Entry: res.Entry, Balance: res.Wallet.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("recharge_id", outcome.Request.ID).
		Int64("customer_id", outcome.Request.CustomerID).
		Int64("entry_id", outcome.Entry.ID).
		Int64("admin_id", req.AdminID).
		Str("amount", outcome.Request.Amount.String()).
		Msg("recharge approved")

	event := domain.NewEvent(domain.EventRechargeApproved, outcome.Request.CustomerID)
	event.WalletID = outcome.Entry.WalletID
	event.Amount = outcome.Entry.Amount
	event.Balance = outcome.Balance
	event.ReferenceType = domain.ReferenceRechargeRequest
	event.ReferenceID = outcome.Request.ID
	publishAfterCommit(ctx, s.notifier, s.log, event)

	return outcome, nil
}

// Reject closes a pending request without touching the ledger.
func (s *RechargeServiceImpl) Reject(ctx context.Context, req ports.ReviewRechargeRequest) (*domain.RechargeRequest, error) {
	if req.RequestID <= 0 {
		return nil, apperror.Validation("recharge request id is required")
	}
	reason := strings.TrimSpace(req.Notes)
	if reason == "" {
		return nil, apperror.Validation("rejection reason is required")
	}
	if len(reason) > maxNotesLength {
		return nil, apperror.Validation("rejection reason is too long")
	}

	var rejected *domain.RechargeRequest
	err := s.transactor.WithinTx(ctx, ports.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		rejected = nil

		recharge, err := s.lockPending(ctx, tx, req.RequestID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		adminID := req.AdminID
		recharge.Status = domain.RechargeStatusRejected
		recharge.RejectionReason = reason
		recharge.ProcessedBy = &adminID
		recharge.ProcessedAt = &now
		if err := s.rechargeRepo.UpdateReview(ctx, tx, recharge); err != nil {
			return apperror.InternalError(fmt.Errorf("update recharge request: %w", err))
		}

		audit := newAuditLog(adminID, domain.AuditActionRechargeReject, "recharge_request",
			strconv.FormatInt(recharge.ID, 10), req.ClientIP, map[string]string{
				"customer_id": strconv.FormatInt(recharge.CustomerID, 10),
				"amount":      recharge.Amount.String(),
				"reason":      reason,
			})
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return apperror.InternalError(fmt.Errorf("write audit log: %w", err))
		}

		rejected = recharge
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("recharge_id", rejected.ID).
		Int64("customer_id", rejected.CustomerID).
		Int64("admin_id", req.AdminID).
		Msg("recharge rejected")

	event := domain.NewEvent(domain.EventRechargeRejected, rejected.CustomerID)
	event.Amount = rejected.Amount
	event.ReferenceType = domain.ReferenceRechargeRequest
	event.ReferenceID = rejected.ID
	event.Attributes = map[string]string{"reason": reason}
	publishAfterCommit(ctx, s.notifier, s.log, event)

	return rejected, nil
}

// ListForCustomer returns all of a customer's requests, newest first.
func (s *RechargeServiceImpl) ListForCustomer(ctx context.Context, customerID int64) ([]domain.RechargeRequest, error) {
	list, err := s.rechargeRepo.ListByCustomer(ctx, nil, customerID, nil)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list recharge requests: %w", err))
	}
	if list == nil {
		list = []domain.RechargeRequest{}
	}
	return list, nil
}

// List returns one page of the admin queue and the total match count.
func (s *RechargeServiceImpl) List(ctx context.Context, params ports.RechargeListParams) ([]domain.RechargeRequest, int64, error) {
	if params.Status != nil && !params.Status.Valid() {
		return nil, 0, apperror.Validation(fmt.Sprintf("unknown status %q", *params.Status))
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	list, total, err := s.rechargeRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list recharge requests: %w", err))
	}
	if list == nil {
		list = []domain.RechargeRequest{}
	}
	return list, total, nil
}
