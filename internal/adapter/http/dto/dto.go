package dto

// Amounts cross the API as decimal strings and are parsed with pkg/money.

// SubmitRechargeRequest is the request body for a customer top-up.
type SubmitRechargeRequest struct {
	Amount           string  `json:"amount" binding:"required,decimal_amount"`
	Currency         string  `json:"currency" binding:"omitempty,currency"`
	PaymentMethod    string  `json:"payment_method" binding:"required,oneof=bank_transfer receipt_upload cash"`
	PaymentReference *string `json:"payment_reference,omitempty" binding:"omitempty,max=100,safe_ref"`
	CustomerNotes    string  `json:"customer_notes" binding:"max=1000"`
}

// ReviewRequest is the request body for approving a recharge.
type ReviewRequest struct {
	Notes string `json:"notes" binding:"max=1000"`
}

// RejectRechargeRequest is the request body for rejecting a recharge.
type RejectRechargeRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// SettleOrderRequest is the request body for a financial approval of an order.
type SettleOrderRequest struct {
	Notes                  string  `json:"notes" binding:"max=1000"`
	ReportedExternalAmount *string `json:"reported_external_amount,omitempty" binding:"omitempty,decimal_amount"`
}

// RejectOrderRequest is the request body for a financial rejection of an order.
type RejectOrderRequest struct {
	Notes string `json:"notes" binding:"required,max=1000"`
}

// AdjustRequest is the request body for a manual balance adjustment.
// For set_balance, Amount is the target balance.
type AdjustRequest struct {
	Type   string `json:"type" binding:"required,oneof=credit debit set_balance"`
	Amount string `json:"amount" binding:"required,decimal_amount"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// WalletStatusRequest is the request body for activating or deactivating a wallet.
type WalletStatusRequest struct {
	Active *bool  `json:"active" binding:"required"`
	Reason string `json:"reason" binding:"required,max=500"`
}

// HistoryQuery holds the history cursor parameters.
type HistoryQuery struct {
	Cursor int64 `form:"cursor" binding:"gte=0"`
	Limit  int   `form:"limit" binding:"gte=0,lte=100"`
}

// RechargeListQuery holds the admin recharge list filters.
type RechargeListQuery struct {
	Status   string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
	Page     int    `form:"page" binding:"gte=0"`
	PageSize int    `form:"page_size" binding:"gte=0,lte=100"`
}

// RechargeListResponse wraps a paginated recharge list.
type RechargeListResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}
