package handler

import (
	"customer-wallet-ledger/internal/adapter/http/middleware"
	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	RechargeSvc    ports.RechargeService
	SettlementSvc  ports.SettlementService
	AdjustmentSvc  ports.AdjustmentService
	Projector      ports.BalanceProjector
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	Currency       string
	RateLimitStore middleware.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = admin read auditing disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", jwtAuth)

	// --- Customer routes ---
	walletHandler := NewWalletHandler(deps.LedgerSvc, deps.RechargeSvc, deps.ReportingSvc, deps.Currency)
	wallet := v1.Group("/wallet", middleware.RequireRole(domain.RoleCustomer))
	{
		wallet.POST("/recharges", rl("recharge_submit"), walletHandler.SubmitRecharge)
		wallet.GET("/recharges", rl("wallet_read"), walletHandler.ListRecharges)
		wallet.GET("/balance", rl("wallet_read"), walletHandler.GetBalance)
		wallet.GET("/history", rl("wallet_read"), walletHandler.GetHistory)
		wallet.GET("/summary", rl("wallet_read"), walletHandler.GetSummary)
	}

	// --- Admin routes ---
	adminHandler := NewAdminHandler(AdminServices{
		Ledger:     deps.LedgerSvc,
		Recharge:   deps.RechargeSvc,
		Settlement: deps.SettlementSvc,
		Adjustment: deps.AdjustmentSvc,
		Projector:  deps.Projector,
		Reporting:  deps.ReportingSvc,
	})
	admin := v1.Group("/admin", middleware.RequireRole(domain.RoleFinancialReviewer, domain.RoleSuperAdmin))
	if deps.AuditSvc != nil {
		admin.Use(middleware.AuditLog(deps.AuditSvc))
	}
	{
		admin.GET("/recharges", rl("admin_read"), adminHandler.ListRecharges)
		admin.POST("/recharges/:id/approve", rl("admin_write"), adminHandler.ApproveRecharge)
		admin.POST("/recharges/:id/reject", rl("admin_write"), adminHandler.RejectRecharge)

		admin.POST("/orders/:id/settle", rl("admin_write"), adminHandler.SettleOrder)
		admin.POST("/orders/:id/reject", rl("admin_write"), adminHandler.RejectOrder)

		admin.GET("/customers/:customerId/balance", rl("admin_read"), adminHandler.GetCustomerBalance)
		admin.GET("/customers/:customerId/history", rl("admin_read"), adminHandler.GetCustomerHistory)
		admin.POST("/customers/:customerId/adjustments", rl("admin_write"), adminHandler.Adjust)
		admin.PUT("/customers/:customerId/status", rl("admin_write"),
			middleware.RequireRole(domain.RoleSuperAdmin), adminHandler.SetWalletStatus)

		admin.POST("/wallets/:walletId/resync", rl("admin_write"), adminHandler.ResyncWallet)
		admin.GET("/wallets/stats", rl("admin_read"), adminHandler.GetWalletStats)
	}

	return r
}
