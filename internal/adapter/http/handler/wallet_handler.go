package handler

import (
	"customer-wallet-ledger/internal/adapter/http/dto"
	"customer-wallet-ledger/internal/adapter/http/middleware"
	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"
	"customer-wallet-ledger/pkg/money"
	"customer-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey deduplicates recharge submissions.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLength = 128

// WalletHandler serves the customer's own wallet endpoints.
type WalletHandler struct {
	ledgerSvc    ports.LedgerService
	rechargeSvc  ports.RechargeService
	reportingSvc ports.ReportingService
	currency     string
}

// NewWalletHandler creates a new WalletHandler. currency fills in recharge
// requests that omit one.
func NewWalletHandler(ledgerSvc ports.LedgerService, rechargeSvc ports.RechargeService, reportingSvc ports.ReportingService, currency string) *WalletHandler {
	return &WalletHandler{
		ledgerSvc:    ledgerSvc,
		rechargeSvc:  rechargeSvc,
		reportingSvc: reportingSvc,
		currency:     currency,
	}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	view, err := h.ledgerSvc.GetBalance(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// GetHistory handles GET /api/v1/wallet/history.
func (h *WalletHandler) GetHistory(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	writeHistory(c, h.ledgerSvc, actor.ID)
}

// GetSummary handles GET /api/v1/wallet/summary.
func (h *WalletHandler) GetSummary(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	summary, err := h.reportingSvc.GetCustomerSummary(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// SubmitRecharge handles POST /api/v1/wallet/recharges.
func (h *WalletHandler) SubmitRecharge(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	idempKey := c.GetHeader(HeaderIdempotencyKey)
	if len(idempKey) > maxIdempotencyKeyLength {
		response.Error(c, apperror.Validation("Idempotency-Key is too long"))
		return
	}

	var req dto.SubmitRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := money.ParsePositive(req.Amount, money.MaxStorable)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}

	created, err := h.rechargeSvc.Submit(c.Request.Context(), ports.SubmitRechargeRequest{
		CustomerID:       actor.ID,
		Amount:           amount,
		Currency:         currency,
		PaymentMethod:    domain.PaymentMethod(req.PaymentMethod),
		PaymentReference: req.PaymentReference,
		CustomerNotes:    req.CustomerNotes,
		IdempotencyKey:   idempKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// ListRecharges handles GET /api/v1/wallet/recharges.
func (h *WalletHandler) ListRecharges(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	list, err := h.rechargeSvc.ListForCustomer(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// writeHistory serves one page of a customer's ledger, shared by the customer and admin routes.
func writeHistory(c *gin.Context, ledgerSvc ports.LedgerService, customerID int64) {
	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := ledgerSvc.GetHistory(c.Request.Context(), customerID, ports.HistoryPage{
		BeforeID: q.Cursor,
		Limit:    q.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
