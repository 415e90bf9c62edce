package response

import (
	"errors"
	"net/http"
	"time"

	"customer-wallet-ledger/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxRequestID is the gin context key holding the request id.
const CtxRequestID = "request_id"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
// Retryable is true when nothing was recorded and the call may be repeated as is.
type ErrorResponse struct {
	ErrorCode         string `json:"error_code"`
	Message           string `json:"message"`
	Retryable         bool   `json:"retryable"`
	BalanceMayBeStale bool   `json:"balance_may_be_stale,omitempty"`
	RequestID         string `json:"request_id"`
	Timestamp         string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, SuccessResponse{
		Data:      data,
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

// Error sends an error response. It checks if err is an *apperror.AppError
// and maps it accordingly, otherwise returns 500.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, ErrorResponse{
			ErrorCode:         appErr.Code,
			Message:           appErr.Message,
			Retryable:         isRetryable(appErr),
			BalanceMayBeStale: appErr.BalanceMayBeStale,
			RequestID:         getRequestID(c),
			Timestamp:         now(),
		})
		return
	}

	// Unknown error -> 500
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		ErrorCode: "SYS_000",
		Message:   "Internal server error",
		RequestID: getRequestID(c),
		Timestamp: now(),
	})
}

// isRetryable: client errors and timeouts left no trace, a conflict might have.
func isRetryable(e *apperror.AppError) bool {
	if e.BalanceMayBeStale {
		return false
	}
	return e.HTTPStatus < http.StatusInternalServerError || e.HTTPStatus == http.StatusServiceUnavailable
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get(CtxRequestID); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
