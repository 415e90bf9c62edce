package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"customer-wallet-ledger/config"
	httpHandler "customer-wallet-ledger/internal/adapter/http/handler"
	"customer-wallet-ledger/internal/adapter/http/middleware"
	memStorage "customer-wallet-ledger/internal/adapter/storage/memory"
	pgStorage "customer-wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "customer-wallet-ledger/internal/adapter/storage/redis"
	"customer-wallet-ledger/internal/core/ports"
	"customer-wallet-ledger/internal/service"
	"customer-wallet-ledger/pkg/logger"
	"customer-wallet-ledger/pkg/money"

	"github.com/rs/zerolog"
)

// storage is the persistence backend selected by database.driver.
type storage struct {
	wallets    ports.WalletRepository
	ledger     ports.LedgerRepository
	recharges  ports.RechargeRepository
	orders     ports.OrderRepository
	audit      ports.AuditRepository
	webhooks   ports.WebhookRepository
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		store := memStorage.New()
		log.Warn().Msg("Using in-memory storage; balances are lost on restart")
		return &storage{
			wallets:    memStorage.NewWalletRepo(store),
			ledger:     memStorage.NewLedgerRepo(store),
			recharges:  memStorage.NewRechargeRepo(store),
			orders:     memStorage.NewOrderRepo(store),
			audit:      memStorage.NewAuditRepository(store),
			webhooks:   memStorage.NewWebhookRepository(store),
			transactor: memStorage.NewTransactor(store, cfg.Ledger.TxTimeout, logger.Component(log, "transactor")),
			health:     store,
			close:      func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected")
	return &storage{
		wallets:    pgStorage.NewWalletRepo(pool),
		ledger:     pgStorage.NewLedgerRepo(pool),
		recharges:  pgStorage.NewRechargeRepo(pool),
		orders:     pgStorage.NewOrderRepo(pool),
		audit:      pgStorage.NewAuditRepository(pool),
		webhooks:   pgStorage.NewWebhookRepository(pool),
		transactor: pgStorage.NewTransactor(pool, cfg.Ledger, logger.Component(log, "transactor")),
		health:     pgStorage.NewHealthCheck(pool),
		close:      pool.Close,
	}, nil
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CWL_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting Customer Wallet Ledger")

	maxRecharge, err := money.ParseNonNegative(cfg.Ledger.MaxRechargeAmount)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.Ledger.MaxRechargeAmount).Msg("Invalid ledger.max_recharge_amount")
	}

	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}
	sigSvc := service.NewHMACSignatureService()

	// Notification sinks
	sinks := []service.NamedNotifier{service.NewLogNotifier(logger.Component(log, "events"))}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, service.NewWebhookNotifier(
			cfg.Notify.WebhookURL,
			cfg.Notify.WebhookSecret,
			sigSvc,
			store.webhooks,
			&http.Client{Timeout: cfg.Notify.WebhookTimeout},
			nil,
			logger.Component(log, "webhook"),
		))
	}

	// Redis is optional: without it, submissions skip idempotency and rate limiting is off.
	var (
		idempCache     ports.IdempotencyCache
		rateLimitStore middleware.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		if cfg.Notify.RedisStream != "" {
			sinks = append(sinks, redisStorage.NewEventStream(rdb, cfg.Notify.RedisStream))
		}
	}
	notifier := service.NewFanoutNotifier(logger.Component(log, "notifier"), sinks...)

	// Initialize business services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.MaxAge)
	ledgerSvc := service.NewLedgerService(store.wallets, store.ledger, store.transactor, cfg.Ledger.Currency, logger.Component(log, "ledger"))
	projector := service.NewBalanceProjector(store.wallets, store.ledger, store.transactor, notifier, logger.Component(log, "projector"))
	rechargeSvc := service.NewRechargeService(
		store.recharges,
		store.audit,
		ledgerSvc,
		store.transactor,
		idempCache,
		notifier,
		service.RechargeConfig{Currency: cfg.Ledger.Currency, MaxAmount: maxRecharge},
		logger.Component(log, "recharge"),
	)
	settlementSvc := service.NewSettlementService(store.orders, store.audit, ledgerSvc, store.transactor, notifier, logger.Component(log, "settlement"))
	adjustmentSvc := service.NewAdjustmentService(store.wallets, store.audit, ledgerSvc, store.transactor, notifier, logger.Component(log, "adjustment"))
	reportingSvc := service.NewReportingService(store.wallets, store.ledger, store.recharges, store.transactor)
	auditSvc := service.NewAuditService(store.audit, logger.Component(log, "audit"))

	// Background reconciliation
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	if cfg.Ledger.ReconcileInterval > 0 {
		reconciler := service.NewReconciler(projector, cfg.Ledger.ReconcileInterval, logger.Component(log, "reconciler"))
		go reconciler.Run(bgCtx)
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		RechargeSvc:    rechargeSvc,
		SettlementSvc:  settlementSvc,
		AdjustmentSvc:  adjustmentSvc,
		Projector:      projector,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		Currency:       cfg.Ledger.Currency,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
