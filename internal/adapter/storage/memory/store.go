// Package memory is a process-local storage driver for development and tests.
// It keeps the same transactional contract as the PostgreSQL adapter: row
// locks are held until commit, writes inside a transaction are invisible to
// others until commit, and constraint violations surface as *pgconn.PgError.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// state is one consistent copy of all tables.
type state struct {
	wallets          map[int64]domain.Wallet
	walletByCustomer map[int64]int64
	entries          []domain.LedgerEntry
	recharges        map[int64]domain.RechargeRequest
	orders           map[int64]domain.Order
	audits           []domain.AuditLog
	webhooks         map[uuid.UUID]domain.WebhookDelivery
}

func newState() *state {
	return &state{
		wallets:          make(map[int64]domain.Wallet),
		walletByCustomer: make(map[int64]int64),
		recharges:        make(map[int64]domain.RechargeRequest),
		orders:           make(map[int64]domain.Order),
		webhooks:         make(map[uuid.UUID]domain.WebhookDelivery),
	}
}

// clone copies the tables for a read-only snapshot. Entries and audits are
// append-only, so sharing their backing arrays up to the current length is safe.
func (s *state) clone() *state {
	c := &state{
		wallets:          make(map[int64]domain.Wallet, len(s.wallets)),
		walletByCustomer: make(map[int64]int64, len(s.walletByCustomer)),
		entries:          s.entries[:len(s.entries):len(s.entries)],
		recharges:        make(map[int64]domain.RechargeRequest, len(s.recharges)),
		orders:           make(map[int64]domain.Order, len(s.orders)),
		audits:           s.audits[:len(s.audits):len(s.audits)],
		webhooks:         make(map[uuid.UUID]domain.WebhookDelivery, len(s.webhooks)),
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.walletByCustomer {
		c.walletByCustomer[k] = v
	}
	for k, v := range s.recharges {
		c.recharges[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.webhooks {
		c.webhooks[k] = v
	}
	return c
}

// Store holds the committed state and the row locks.
type Store struct {
	mu    sync.RWMutex
	st    *state
	locks *lockTable

	walletSeq   int64
	entrySeq    int64
	rechargeSeq int64
	orderSeq    int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		st:    newState(),
		locks: newLockTable(),
	}
}

// nextID allocates from a sequence. Like a database sequence, ids consumed by
// rolled-back transactions are not reused.
func (s *Store) nextID(seq *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	*seq++
	return *seq
}

// view runs fn against the state visible to tx: its snapshot for read-only
// transactions, the committed tables otherwise.
func (s *Store) view(tx *memTx, fn func(st *state)) {
	if tx != nil && tx.snapshot != nil {
		fn(tx.snapshot)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

// SeedOrder inserts an order as the order subsystem would. The id is assigned
// when o.ID is zero.
func (s *Store) SeedOrder(o domain.Order) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		s.orderSeq++
		o.ID = s.orderSeq
	} else if o.ID > s.orderSeq {
		s.orderSeq = o.ID
	}
	if o.FinancialReviewStatus == "" {
		o.FinancialReviewStatus = domain.FinancialReviewPending
	}
	if o.RemainingAmount.IsZero() {
		o.RemainingAmount = o.TotalAmount.Sub(o.WalletUsed)
	}
	s.st.orders[o.ID] = o
	return o.ID
}

// AuditLogs returns committed audit records, oldest first.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, len(s.st.audits))
	copy(out, s.st.audits)
	return out
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return "memory"
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{
		Severity:       "ERROR",
		Code:           "23514",
		Message:        "new row violates check constraint \"" + constraint + "\"",
		ConstraintName: constraint,
	}
}

func sortEntriesDesc(entries []domain.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
}

func copyMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func now() time.Time {
	return time.Now().UTC()
}
