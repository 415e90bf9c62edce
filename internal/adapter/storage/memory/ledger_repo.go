package memory

import (
	"context"
	"fmt"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository. Entries are insert-only.
type LedgerRepo struct {
	store *Store
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(store *Store) *LedgerRepo {
	return &LedgerRepo{store: store}
}

// uniqueReference reports whether kind may occur at most once per reference.
func uniqueReference(kind domain.EntryKind) bool {
	return kind == domain.EntryKindRechargeApproved || kind == domain.EntryKindOrderPayment
}

func sameReference(a, b *domain.LedgerEntry) bool {
	ra, rb := a.Reference(), b.Reference()
	return a.Kind == b.Kind && ra != nil && rb != nil && *ra == *rb
}

// Create stages an entry and fills in ID and CreatedAt.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	mt, err := mustTx(tx)
	if err != nil {
		return err
	}
	switch {
	case e.Amount.IsZero():
		return checkViolation("ledger_entries_amount_check")
	case e.BalanceAfter.IsNegative():
		return checkViolation("ledger_entries_balance_after_check")
	case !e.Kind.Valid():
		return checkViolation("ledger_entries_kind_check")
	}

	if uniqueReference(e.Kind) && e.ReferenceID != nil {
		dup := false
		for i := range mt.entries {
			dup = dup || sameReference(&mt.entries[i], e)
		}
		r.store.view(nil, func(st *state) {
			for i := range st.entries {
				dup = dup || sameReference(&st.entries[i], e)
			}
		})
		if dup {
			return fmt.Errorf("insert ledger entry: %w", uniqueViolation("uq_ledger_entries_reference"))
		}
	}

	e.ID = r.store.nextID(&r.store.entrySeq)
	e.CreatedAt = now()

	stored := *e
	stored.Metadata = copyMeta(e.Metadata)
	mt.entries = append(mt.entries, stored)
	return nil
}

// entries returns the wallet's entries visible to tx, in no particular order.
func (r *LedgerRepo) entries(tx pgx.Tx, walletID int64) ([]domain.LedgerEntry, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	var out []domain.LedgerEntry
	r.store.view(mt, func(st *state) {
		for _, e := range st.entries {
			if e.WalletID == walletID {
				out = append(out, e)
			}
		}
	})
	if mt != nil {
		for _, e := range mt.entries {
			if e.WalletID == walletID {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (r *LedgerRepo) SumByWallet(ctx context.Context, tx pgx.Tx, walletID int64) (decimal.Decimal, error) {
	entries, err := r.entries(tx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

func (r *LedgerRepo) ListByWallet(ctx context.Context, tx pgx.Tx, params ports.LedgerListParams) ([]domain.LedgerEntry, error) {
	entries, err := r.entries(tx, params.WalletID)
	if err != nil {
		return nil, err
	}
	sortEntriesDesc(entries)

	out := make([]domain.LedgerEntry, 0, params.Limit)
	for _, e := range entries {
		if params.BeforeID > 0 && e.ID >= params.BeforeID {
			continue
		}
		if len(out) == params.Limit {
			break
		}
		e.Metadata = copyMeta(e.Metadata)
		out = append(out, e)
	}
	return out, nil
}

func (r *LedgerRepo) GetTotals(ctx context.Context, tx pgx.Tx, walletID int64) (*ports.LedgerTotals, error) {
	entries, err := r.entries(tx, walletID)
	if err != nil {
		return nil, err
	}
	t := &ports.LedgerTotals{Recharged: decimal.Zero, Spent: decimal.Zero}
	for _, e := range entries {
		switch e.Kind {
		case domain.EntryKindRechargeApproved:
			t.Recharged = t.Recharged.Add(e.Amount)
		case domain.EntryKindOrderPayment:
			t.Spent = t.Spent.Sub(e.Amount)
		}
		t.Entries++
	}
	return t, nil
}
