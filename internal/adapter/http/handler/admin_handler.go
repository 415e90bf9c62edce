package handler

import (
	"fmt"
	"math"
	"strconv"

	"customer-wallet-ledger/internal/adapter/http/dto"
	"customer-wallet-ledger/internal/adapter/http/middleware"
	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/pkg/apperror"
	"customer-wallet-ledger/pkg/money"
	"customer-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AdminHandler serves the financial review and wallet administration endpoints.
type AdminHandler struct {
	ledgerSvc     ports.LedgerService
	rechargeSvc   ports.RechargeService
	settlementSvc ports.SettlementService
	adjustmentSvc ports.AdjustmentService
	projector     ports.BalanceProjector
	reportingSvc  ports.ReportingService
}

// AdminServices groups the services behind AdminHandler.
type AdminServices struct {
	Ledger     ports.LedgerService
	Recharge   ports.RechargeService
	Settlement ports.SettlementService
	Adjustment ports.AdjustmentService
	Projector  ports.BalanceProjector
	Reporting  ports.ReportingService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc AdminServices) *AdminHandler {
	return &AdminHandler{
		ledgerSvc:     svc.Ledger,
		rechargeSvc:   svc.Recharge,
		settlementSvc: svc.Settlement,
		adjustmentSvc: svc.Adjustment,
		projector:     svc.Projector,
		reportingSvc:  svc.Reporting,
	}
}

// pathID reads a positive int64 path parameter.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation(fmt.Sprintf("%s must be a positive integer", name))
	}
	return id, nil
}

// ListRecharges handles GET /api/v1/admin/recharges.
func (h *AdminHandler) ListRecharges(c *gin.Context) {
	var q dto.RechargeListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	params := ports.RechargeListParams{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := domain.RechargeStatus(q.Status)
		params.Status = &status
	}

	items, total, err := h.rechargeSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.RechargeListResponse{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	})
}

// ApproveRecharge handles POST /api/v1/admin/recharges/:id/approve.
func (h *AdminHandler) ApproveRecharge(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.ReviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}
	dto.SanitizeStruct(&req)

	outcome, err := h.rechargeSvc.Approve(c.Request.Context(), ports.ReviewRechargeRequest{
		RequestID: id,
		AdminID:   actor.ID,
		Notes:     req.Notes,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, outcome)
}

// RejectRecharge handles POST /api/v1/admin/recharges/:id/reject.
func (h *AdminHandler) RejectRecharge(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RejectRechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	rejected, err := h.rechargeSvc.Reject(c.Request.Context(), ports.ReviewRechargeRequest{
		RequestID: id,
		AdminID:   actor.ID,
		Notes:     req.Reason,
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rejected)
}

// SettleOrder handles POST /api/v1/admin/orders/:id/settle.
func (h *AdminHandler) SettleOrder(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.SettleOrderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}
	dto.SanitizeStruct(&req)

	var reported *decimal.Decimal
	if req.ReportedExternalAmount != nil {
		amount, err := money.ParseNonNegative(*req.ReportedExternalAmount)
		if err != nil {
			response.Error(c, apperror.Validation("reported_external_amount: "+err.Error()))
			return
		}
		reported = &amount
	}

	outcome, err := h.settlementSvc.SettleApprovedOrder(c.Request.Context(), ports.SettleOrderRequest{
		OrderID:                id,
		ReviewerID:             actor.ID,
		Notes:                  req.Notes,
		ReportedExternalAmount: reported,
		ClientIP:               c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, outcome)
}

// RejectOrder handles POST /api/v1/admin/orders/:id/reject.
func (h *AdminHandler) RejectOrder(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.RejectOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	order, err := h.settlementSvc.RejectOrder(c.Request.Context(), ports.RejectOrderRequest{
		OrderID:    id,
		ReviewerID: actor.ID,
		Notes:      req.Notes,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, order)
}

// GetCustomerBalance handles GET /api/v1/admin/customers/:customerId/balance.
func (h *AdminHandler) GetCustomerBalance(c *gin.Context) {
	customerID, err := pathID(c, "customerId")
	if err != nil {
		response.Error(c, err)
		return
	}

	view, err := h.ledgerSvc.GetBalance(c.Request.Context(), customerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// GetCustomerHistory handles GET /api/v1/admin/customers/:customerId/history.
func (h *AdminHandler) GetCustomerHistory(c *gin.Context) {
	customerID, err := pathID(c, "customerId")
	if err != nil {
		response.Error(c, err)
		return
	}
	writeHistory(c, h.ledgerSvc, customerID)
}

// Adjust handles POST /api/v1/admin/customers/:customerId/adjustments.
func (h *AdminHandler) Adjust(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	customerID, err := pathID(c, "customerId")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	parse := func(raw string) (decimal.Decimal, error) { return money.ParsePositive(raw, money.MaxStorable) }
	if req.Type == string(ports.AdjustmentSetBalance) {
		parse = money.ParseNonNegative
	}
	amount, err := parse(req.Amount)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	outcome, err := h.adjustmentSvc.Adjust(c.Request.Context(), ports.AdjustRequest{
		CustomerID: customerID,
		AdminID:    actor.ID,
		Type:       ports.AdjustmentType(req.Type),
		Amount:     amount,
		Reason:     req.Reason,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, outcome)
}

// SetWalletStatus handles PUT /api/v1/admin/customers/:customerId/status.
func (h *AdminHandler) SetWalletStatus(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	customerID, err := pathID(c, "customerId")
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.WalletStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	wallet, err := h.adjustmentSvc.SetWalletActive(c.Request.Context(), ports.WalletStatusRequest{
		CustomerID: customerID,
		AdminID:    actor.ID,
		Active:     *req.Active,
		Reason:     req.Reason,
		ClientIP:   c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wallet)
}

// ResyncWallet handles POST /api/v1/admin/wallets/:walletId/resync.
func (h *AdminHandler) ResyncWallet(c *gin.Context) {
	walletID, err := pathID(c, "walletId")
	if err != nil {
		response.Error(c, err)
		return
	}

	drift, err := h.projector.Resync(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"drift":    drift,
		"detected": drift.Detected(),
	})
}

// GetWalletStats handles GET /api/v1/admin/wallets/stats.
func (h *AdminHandler) GetWalletStats(c *gin.Context) {
	stats, err := h.reportingSvc.GetWalletStatistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
