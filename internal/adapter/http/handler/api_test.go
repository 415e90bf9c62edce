package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	memStorage "customer-wallet-ledger/internal/adapter/storage/memory"
	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp wires the real services over in-memory storage behind the router.
type testApp struct {
	router *gin.Engine
	store  *memStorage.Store
	tokens *service.JWTTokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zerolog.Nop()
	store := memStorage.New()

	wallets := memStorage.NewWalletRepo(store)
	ledgerRepo := memStorage.NewLedgerRepo(store)
	recharges := memStorage.NewRechargeRepo(store)
	orders := memStorage.NewOrderRepo(store)
	audit := memStorage.NewAuditRepository(store)
	transactor := memStorage.NewTransactor(store, 5*time.Second, log)
	notifier := service.NewFanoutNotifier(log, service.NewLogNotifier(log))

	tokens := service.NewJWTTokenService("test-secret", "identity-provider", time.Hour)
	ledger := service.NewLedgerService(wallets, ledgerRepo, transactor, "IQD", log)

	rechargeSvc := service.NewRechargeService(recharges, audit, ledger, transactor, nil, notifier,
		service.RechargeConfig{Currency: "IQD", MaxAmount: decimal.RequireFromString("1000000")}, log)

	router := SetupRouter(RouterDeps{
		LedgerSvc:     ledger,
		RechargeSvc:   rechargeSvc,
		SettlementSvc: service.NewSettlementService(orders, audit, ledger, transactor, notifier, log),
		AdjustmentSvc: service.NewAdjustmentService(wallets, audit, ledger, transactor, notifier, log),
		Projector:     service.NewBalanceProjector(wallets, ledgerRepo, transactor, notifier, log),
		ReportingSvc:  service.NewReportingService(wallets, ledgerRepo, recharges, transactor),
		TokenSvc:      tokens,
		Currency:      "IQD",
		Logger:        log,
	})
	return &testApp{router: router, store: store, tokens: tokens}
}

func (a *testApp) do(t *testing.T, actor domain.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	token, _, err := a.tokens.Generate(actor, time.Minute)
	assert.NoError(t, err)

	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) balance(t *testing.T, customerID int64) string {
	t.Helper()
	w := a.do(t, domain.Actor{ID: customerID, Role: domain.RoleCustomer}, http.MethodGet, "/api/v1/wallet/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return decodeData(t, w)["balance"].(string)
}

func (a *testApp) submitAndApprove(t *testing.T, customerID int64, amount string) {
	t.Helper()
	cust := domain.Actor{ID: customerID, Role: domain.RoleCustomer}
	w := a.do(t, cust, http.MethodPost, "/api/v1/wallet/recharges", map[string]string{
		"amount":         amount,
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(decodeData(t, w)["id"].(float64))

	w = a.do(t, reviewer, http.MethodPost, fmt.Sprintf("/api/v1/admin/recharges/%d/approve", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAPI_ConcurrentApprovalCreditsOnce(t *testing.T) {
	app := newTestApp(t)
	cust := domain.Actor{ID: 501, Role: domain.RoleCustomer}

	w := app.do(t, cust, http.MethodPost, "/api/v1/wallet/recharges", map[string]string{
		"amount":         "100",
		"payment_method": "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(decodeData(t, w)["id"].(float64))

	const workers = 10
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = app.do(t, reviewer, http.MethodPost, fmt.Sprintf("/api/v1/admin/recharges/%d/approve", id), nil).Code
		}(i)
	}
	wg.Wait()

	ok, conflict := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflict)
	assert.Equal(t, "100", app.balance(t, 501))
}

func TestAPI_ConcurrentSettlementsNeverOverdraw(t *testing.T) {
	app := newTestApp(t)
	app.submitAndApprove(t, 502, "100")

	orderIDs := []int64{
		app.store.SeedOrder(domain.Order{OrderNumber: "ORD-1", CustomerID: 502, TotalAmount: decimal.NewFromInt(60), WalletUsed: decimal.NewFromInt(60)}),
		app.store.SeedOrder(domain.Order{OrderNumber: "ORD-2", CustomerID: 502, TotalAmount: decimal.NewFromInt(60), WalletUsed: decimal.NewFromInt(60)}),
	}

	codes := make([]int, len(orderIDs))
	var wg sync.WaitGroup
	for i, id := range orderIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			codes[i] = app.do(t, reviewer, http.MethodPost, fmt.Sprintf("/api/v1/admin/orders/%d/settle", id), nil).Code
		}(i, id)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusPaymentRequired}, codes)
	assert.Equal(t, "40", app.balance(t, 502))
}

func TestAPI_AdjustAndHistory(t *testing.T) {
	app := newTestApp(t)
	app.submitAndApprove(t, 503, "250.75")

	w := app.do(t, reviewer, http.MethodPost, "/api/v1/admin/customers/503/adjustments", map[string]string{
		"type":   "set_balance",
		"amount": "200",
		"reason": "reconciled with bank statement",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "200", app.balance(t, 503))

	w = app.do(t, reviewer, http.MethodGet, "/api/v1/admin/customers/503/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	entries := data["entries"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "admin_set_balance", entries[0].(map[string]interface{})["kind"])
	assert.NotNil(t, data["next_cursor"])

	var adjusted int
	for _, l := range app.store.AuditLogs() {
		if l.Action == domain.AuditActionAdjustBalance && l.ResourceID == "503" {
			adjusted++
		}
	}
	assert.Equal(t, 1, adjusted)
}

func TestAPI_DeactivatedWalletRefusesCredits(t *testing.T) {
	app := newTestApp(t)
	app.submitAndApprove(t, 504, "10")

	admin := domain.Actor{ID: 1, Role: domain.RoleSuperAdmin}
	w := app.do(t, admin, http.MethodPut, "/api/v1/admin/customers/504/status", map[string]interface{}{
		"active": false,
		"reason": "chargeback investigation",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, reviewer, http.MethodPost, "/api/v1/admin/customers/504/adjustments", map[string]string{
		"type":   "credit",
		"amount": "5",
		"reason": "goodwill",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "10", app.balance(t, 504))
}

func TestAPI_OversizedAdjustmentIsValidationError(t *testing.T) {
	app := newTestApp(t)
	app.submitAndApprove(t, 505, "10")

	w := app.do(t, reviewer, http.MethodPost, "/api/v1/admin/customers/505/adjustments", map[string]string{
		"type":   "credit",
		"amount": "100000000000000000000",
		"reason": "import",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = app.do(t, reviewer, http.MethodPost, "/api/v1/admin/customers/505/adjustments", map[string]string{
		"type":   "set_balance",
		"amount": "9999999999999999.99",
		"reason": "ceiling",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(t, reviewer, http.MethodPost, "/api/v1/admin/customers/505/adjustments", map[string]string{
		"type":   "credit",
		"amount": "0.01",
		"reason": "past the ceiling",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, "9999999999999999.99", app.balance(t, 505))
}
