package postgres

import (
	"context"
	"testing"
	"time"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderColumns() []string {
	return []string{"id", "order_number", "customer_id", "total_amount", "wallet_used", "remaining_amount",
		"financial_review_status", "financial_reviewed_at", "financial_reviewer_id", "financial_notes"}
}

func TestOrderRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows(orderColumns()).AddRow(
			int64(42), "ORD-42", int64(1001), decimal.NewFromInt(15000), decimal.NewFromInt(7000),
			decimal.NewFromInt(8000), domain.FinancialReviewPending, (*time.Time)(nil), (*int64)(nil), "",
		))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	o, err := repo.GetByIDForUpdate(context.Background(), tx, 42)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.IsPendingReview())
	assert.True(t, o.UsesWallet())
	assert.Equal(t, "7000", o.WalletUsed.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows(orderColumns()))

	o, err := repo.GetByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestOrderRepo_UpdateReview(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	now := time.Now().UTC()
	reviewer := int64(9)
	o := &domain.Order{
		ID:                    42,
		FinancialReviewStatus: domain.FinancialReviewApproved,
		FinancialReviewedAt:   &now,
		FinancialReviewerID:   &reviewer,
		FinancialNotes:        "ok",
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET .+ financial_review_status = 'pending_review'").
		WithArgs(o.FinancialReviewStatus, o.FinancialReviewedAt, o.FinancialReviewerID, o.FinancialNotes, o.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.UpdateReview(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_UpdateReview_AlreadyReviewed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := &domain.Order{ID: 42, FinancialReviewStatus: domain.FinancialReviewRejected}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateReview(context.Background(), tx, o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order pending review not found")
}
