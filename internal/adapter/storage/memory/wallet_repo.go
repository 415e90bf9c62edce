package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

// find resolves a wallet as tx sees it: its own staged writes first, then
// the committed (or snapshot) tables.
func (r *WalletRepo) find(mt *memTx, match func(w domain.Wallet) bool, byID int64, byCustomer int64) (*domain.Wallet, bool) {
	if mt != nil {
		for _, w := range mt.wallets {
			if match(w) {
				return &w, true
			}
		}
	}
	var (
		w  domain.Wallet
		ok bool
	)
	r.store.view(mt, func(st *state) {
		id := byID
		if id == 0 {
			id, ok = st.walletByCustomer[byCustomer]
			if !ok {
				return
			}
		}
		w, ok = st.wallets[id]
	})
	if !ok {
		return nil, false
	}
	return &w, true
}

func (r *WalletRepo) findByID(mt *memTx, id int64) *domain.Wallet {
	w, _ := r.find(mt, func(w domain.Wallet) bool { return w.ID == id }, id, 0)
	return w
}

func (r *WalletRepo) findByCustomer(mt *memTx, customerID int64) *domain.Wallet {
	w, _ := r.find(mt, func(w domain.Wallet) bool { return w.CustomerID == customerID }, 0, customerID)
	return w
}

func (r *WalletRepo) GetByID(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	return r.findByID(mt, id), nil
}

func (r *WalletRepo) GetByCustomerID(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	return r.findByCustomer(mt, customerID), nil
}

func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, customerID int64, currency string) (*domain.Wallet, error) {
	mt, err := mustTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, customerLockKey(customerID)); err != nil {
		return nil, err
	}
	if w := r.findByCustomer(mt, customerID); w != nil {
		return w, nil
	}

	ts := now()
	w := domain.Wallet{
		ID:         r.store.nextID(&r.store.walletSeq),
		CustomerID: customerID,
		Balance:    decimal.Zero,
		Currency:   currency,
		IsActive:   true,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	mt.wallets[w.ID] = w
	return &w, nil
}

func (r *WalletRepo) GetByCustomerIDForUpdate(ctx context.Context, tx pgx.Tx, customerID int64) (*domain.Wallet, error) {
	mt, err := mustTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, customerLockKey(customerID)); err != nil {
		return nil, err
	}
	return r.findByCustomer(mt, customerID), nil
}

func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Wallet, error) {
	mt, err := mustTx(tx)
	if err != nil {
		return nil, err
	}
	w := r.findByID(mt, id)
	if w == nil {
		return nil, nil
	}
	if err := mt.lock(ctx, customerLockKey(w.CustomerID)); err != nil {
		return nil, err
	}
	// Re-read now that concurrent writers are excluded.
	return r.findByID(mt, id), nil
}

// modify stages a change to a wallet the transaction must already have locked.
func (r *WalletRepo) modify(tx pgx.Tx, walletID int64, fn func(w *domain.Wallet) error) error {
	mt, err := mustTx(tx)
	if err != nil {
		return err
	}
	w := r.findByID(mt, walletID)
	if w == nil {
		return fmt.Errorf("wallet not found: %d", walletID)
	}
	if _, ok := mt.held[customerLockKey(w.CustomerID)]; !ok {
		return fmt.Errorf("memory: wallet %d modified without holding its lock", walletID)
	}
	if err := fn(w); err != nil {
		return err
	}
	w.UpdatedAt = now()
	mt.wallets[walletID] = *w
	return nil
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID int64, balance decimal.Decimal) error {
	return r.modify(tx, walletID, func(w *domain.Wallet) error {
		if balance.IsNegative() {
			return checkViolation("wallets_cached_balance_check")
		}
		w.Balance = balance
		return nil
	})
}

func (r *WalletRepo) MarkSynced(ctx context.Context, tx pgx.Tx, walletID int64, balance decimal.Decimal, syncedAt time.Time) error {
	return r.modify(tx, walletID, func(w *domain.Wallet) error {
		if balance.IsNegative() {
			return checkViolation("wallets_cached_balance_check")
		}
		w.Balance = balance
		w.LastSyncedAt = &syncedAt
		return nil
	})
}

func (r *WalletRepo) SetActive(ctx context.Context, tx pgx.Tx, walletID int64, active bool) error {
	return r.modify(tx, walletID, func(w *domain.Wallet) error {
		w.IsActive = active
		return nil
	})
}

func (r *WalletRepo) ListIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	r.store.view(nil, func(st *state) {
		ids = make([]int64, 0, len(st.wallets))
		for id := range st.wallets {
			ids = append(ids, id)
		}
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *WalletRepo) GetStats(ctx context.Context) (*ports.WalletStats, error) {
	s := &ports.WalletStats{TotalBalance: decimal.Zero}
	r.store.view(nil, func(st *state) {
		for _, w := range st.wallets {
			s.TotalWallets++
			if w.IsActive {
				s.ActiveWallets++
			}
			s.TotalBalance = s.TotalBalance.Add(w.Balance)
		}
		for _, req := range st.recharges {
			if req.IsPending() {
				s.PendingRecharges++
			}
		}
		s.TotalEntries = int64(len(st.entries))
	})
	return s, nil
}
