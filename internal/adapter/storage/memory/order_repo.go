package memory

import (
	"context"
	"fmt"
	"strconv"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository. Orders are seeded with Store.SeedOrder.
type OrderRepo struct {
	store *Store
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(store *Store) *OrderRepo {
	return &OrderRepo{store: store}
}

func orderLockKey(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}

func (r *OrderRepo) lookup(mt *memTx, id int64) *domain.Order {
	if mt != nil {
		if o, ok := mt.orders[id]; ok {
			return &o
		}
	}
	var (
		o  domain.Order
		ok bool
	)
	r.store.view(mt, func(st *state) { o, ok = st.orders[id] })
	if !ok {
		return nil
	}
	return &o
}

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.lookup(nil, id), nil
}

func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	mt, err := mustTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, orderLockKey(id)); err != nil {
		return nil, err
	}
	return r.lookup(mt, id), nil
}

func (r *OrderRepo) UpdateReview(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	mt, err := mustTx(tx)
	if err != nil {
		return err
	}
	current := r.lookup(mt, o.ID)
	if current == nil || !current.IsPendingReview() {
		return fmt.Errorf("order pending review not found: %d", o.ID)
	}
	current.FinancialReviewStatus = o.FinancialReviewStatus
	current.FinancialReviewedAt = o.FinancialReviewedAt
	current.FinancialReviewerID = o.FinancialReviewerID
	current.FinancialNotes = o.FinancialNotes
	mt.orders[o.ID] = *current
	return nil
}
