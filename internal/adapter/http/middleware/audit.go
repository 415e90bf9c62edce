package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful admin requests that are not audited inside a
// ledger transaction: wallet views, statistics and resyncs.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}

		action, resourceType, param := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		entry := &domain.AuditLog{
			ID:           uuid.New(),
			Action:       action,
			ResourceType: resourceType,
			IPAddress:    c.ClientIP(),
			CreatedAt:    time.Now(),
		}
		if param != "" {
			entry.ResourceID = c.Param(param)
		}
		if actor, ok := ActorFrom(c); ok {
			id := actor.ID
			entry.ActorID = &id
			entry.ActorRole = actor.Role
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"query":  c.Request.URL.RawQuery,
			"status": c.Writer.Status(),
		})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string, string) {
	switch {
	case route == "/api/v1/admin/customers/:customerId/balance" && method == http.MethodGet:
		return domain.AuditActionViewWallet, "customer", "customerId"
	case route == "/api/v1/admin/customers/:customerId/history" && method == http.MethodGet:
		return domain.AuditActionViewWallet, "customer", "customerId"
	case route == "/api/v1/admin/wallets/stats" && method == http.MethodGet:
		return domain.AuditActionViewStats, "wallet", ""
	case route == "/api/v1/admin/wallets/:walletId/resync" && method == http.MethodPost:
		return domain.AuditActionWalletResync, "wallet", "walletId"
	}
	return "", "", ""
}
