package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const rechargeColumnList = `id, request_number, customer_id, amount, currency, payment_method, payment_reference,
		status, customer_notes, admin_notes, rejection_reason, processed_by, ledger_entry_id,
		created_at, approved_at, processed_at`

// RechargeRepo implements ports.RechargeRepository.
type RechargeRepo struct {
	pool Pool
}

// NewRechargeRepo creates a new RechargeRepo.
func NewRechargeRepo(pool Pool) *RechargeRepo {
	return &RechargeRepo{pool: pool}
}

// Create inserts a pending recharge request and fills in ID and CreatedAt.
func (r *RechargeRepo) Create(ctx context.Context, req *domain.RechargeRequest) error {
	query := `INSERT INTO recharge_requests (request_number, customer_id, amount, currency, payment_method,
		payment_reference, status, customer_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		req.RequestNumber, req.CustomerID, req.Amount, req.Currency, req.PaymentMethod,
		req.PaymentReference, req.Status, req.CustomerNotes,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recharge request: %w", err)
	}
	return nil
}

// GetByID fetches a recharge request by id.
func (r *RechargeRepo) GetByID(ctx context.Context, id int64) (*domain.RechargeRequest, error) {
	query := `SELECT ` + rechargeColumnList + ` FROM recharge_requests WHERE id = $1`
	return r.scanRecharge(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the request row for review.
// This MUST be called within a transaction.
func (r *RechargeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.RechargeRequest, error) {
	query := `SELECT ` + rechargeColumnList + ` FROM recharge_requests WHERE id = $1 FOR UPDATE`
	return r.scanRecharge(tx.QueryRow(ctx, query, id))
}

// UpdateReview records an approve or reject decision. Only pending rows change.
func (r *RechargeRepo) UpdateReview(ctx context.Context, tx pgx.Tx, req *domain.RechargeRequest) error {
	query := `UPDATE recharge_requests SET status = $1, admin_notes = $2, rejection_reason = $3,
		processed_by = $4, ledger_entry_id = $5, approved_at = $6, processed_at = $7
		WHERE id = $8 AND status = 'pending'`

	tag, err := tx.Exec(ctx, query,
		req.Status, req.AdminNotes, req.RejectionReason,
		req.ProcessedBy, req.LedgerEntryID, req.ApprovedAt, req.ProcessedAt, req.ID,
	)
	if err != nil {
		return fmt.Errorf("update recharge review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending recharge request not found: %d", req.ID)
	}
	return nil
}

// ListByCustomer returns a customer's requests, newest first, optionally filtered by status.
func (r *RechargeRepo) ListByCustomer(ctx context.Context, tx pgx.Tx, customerID int64, status *domain.RechargeStatus) ([]domain.RechargeRequest, error) {
	query := `SELECT ` + rechargeColumnList + ` FROM recharge_requests WHERE customer_id = $1`
	args := []any{customerID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := conn(r.pool, tx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customer recharges: %w", err)
	}
	defer rows.Close()

	return collectRecharges(rows)
}

// List fetches recharge requests with filtering and pagination.
func (r *RechargeRepo) List(ctx context.Context, params ports.RechargeListParams) ([]domain.RechargeRequest, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIdx))
		args = append(args, *params.CustomerID)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM recharge_requests %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recharge requests: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM recharge_requests %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		rechargeColumnList, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list recharge requests: %w", err)
	}
	defer rows.Close()

	reqs, err := collectRecharges(rows)
	if err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

func collectRecharges(rows pgx.Rows) ([]domain.RechargeRequest, error) {
	var reqs []domain.RechargeRequest
	for rows.Next() {
		req, err := scanRechargeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recharge row: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recharge rows: %w", err)
	}
	return reqs, nil
}

func scanRechargeRow(row pgx.Row) (*domain.RechargeRequest, error) {
	req := &domain.RechargeRequest{}
	err := row.Scan(
		&req.ID, &req.RequestNumber, &req.CustomerID, &req.Amount, &req.Currency,
		&req.PaymentMethod, &req.PaymentReference, &req.Status,
		&req.CustomerNotes, &req.AdminNotes, &req.RejectionReason,
		&req.ProcessedBy, &req.LedgerEntryID,
		&req.CreatedAt, &req.ApprovedAt, &req.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// scanRecharge maps a single row, returning nil when nothing matched.
func (r *RechargeRepo) scanRecharge(row pgx.Row) (*domain.RechargeRequest, error) {
	req, err := scanRechargeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recharge request: %w", err)
	}
	return req, nil
}
