package postgres

import (
	"context"
	"errors"
	"fmt"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const orderColumnList = `id, order_number, customer_id, total_amount, wallet_used, remaining_amount,
		financial_review_status, financial_reviewed_at, financial_reviewer_id, financial_notes`

// OrderRepo implements ports.OrderRepository over the order subsystem's table.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// GetByID fetches an order's financial fields.
func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumnList + ` FROM orders WHERE id = $1`
	return r.scanOrder(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the order row for financial review.
// This MUST be called within a transaction.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumnList + ` FROM orders WHERE id = $1 FOR UPDATE`
	return r.scanOrder(tx.QueryRow(ctx, query, id))
}

// UpdateReview stores the review outcome. Only orders still pending review change.
func (r *OrderRepo) UpdateReview(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	query := `UPDATE orders SET financial_review_status = $1, financial_reviewed_at = $2,
		financial_reviewer_id = $3, financial_notes = $4
		WHERE id = $5 AND financial_review_status = 'pending_review'`

	tag, err := tx.Exec(ctx, query,
		o.FinancialReviewStatus, o.FinancialReviewedAt, o.FinancialReviewerID, o.FinancialNotes, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order pending review not found: %d", o.ID)
	}
	return nil
}

func (r *OrderRepo) scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.TotalAmount, &o.WalletUsed, &o.RemainingAmount,
		&o.FinancialReviewStatus, &o.FinancialReviewedAt, &o.FinancialReviewerID, &o.FinancialNotes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}
