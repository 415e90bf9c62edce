package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"customer-wallet-ledger/internal/core/domain"
	"customer-wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// RechargeRepo implements ports.RechargeRepository.
type RechargeRepo struct {
	store *Store
}

// NewRechargeRepo creates a new RechargeRepo.
func NewRechargeRepo(store *Store) *RechargeRepo {
	return &RechargeRepo{store: store}
}

func rechargeLockKey(id int64) string {
	return "recharge:" + strconv.FormatInt(id, 10)
}

func (r *RechargeRepo) Create(ctx context.Context, req *domain.RechargeRequest) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.st.recharges {
		if existing.RequestNumber == req.RequestNumber {
			return fmt.Errorf("insert recharge request: %w", uniqueViolation("recharge_requests_request_number_key"))
		}
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("insert recharge request: %w", checkViolation("recharge_requests_amount_check"))
	}

	s.rechargeSeq++
	req.ID = s.rechargeSeq
	req.CreatedAt = now()
	s.st.recharges[req.ID] = *req
	return nil
}

func (r *RechargeRepo) lookup(mt *memTx, id int64) *domain.RechargeRequest {
	if mt != nil {
		if req, ok := mt.recharges[id]; ok {
			return &req
		}
	}
	var (
		req domain.RechargeRequest
		ok  bool
	)
	r.store.view(mt, func(st *state) { req, ok = st.recharges[id] })
	if !ok {
		return nil
	}
	return &req
}

func (r *RechargeRepo) GetByID(ctx context.Context, id int64) (*domain.RechargeRequest, error) {
	return r.lookup(nil, id), nil
}

func (r *RechargeRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.RechargeRequest, error) {
	mt, err := mustTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mt.lock(ctx, rechargeLockKey(id)); err != nil {
		return nil, err
	}
	return r.lookup(mt, id), nil
}

func (r *RechargeRepo) UpdateReview(ctx context.Context, tx pgx.Tx, req *domain.RechargeRequest) error {
	mt, err := mustTx(tx)
	if err != nil {
		return err
	}
	current := r.lookup(mt, req.ID)
	if current == nil || !current.IsPending() {
		return fmt.Errorf("pending recharge request not found: %d", req.ID)
	}
	if req.Status == domain.RechargeStatusRejected && req.RejectionReason == "" {
		return checkViolation("recharge_requests_check")
	}

	current.Status = req.Status
	current.AdminNotes = req.AdminNotes
	current.RejectionReason = req.RejectionReason
	current.ProcessedBy = req.ProcessedBy
	current.LedgerEntryID = req.LedgerEntryID
	current.ApprovedAt = req.ApprovedAt
	current.ProcessedAt = req.ProcessedAt
	mt.recharges[req.ID] = *current
	return nil
}

// visible lists the requests tx can see that satisfy keep, newest first.
func (r *RechargeRepo) visible(mt *memTx, keep func(req *domain.RechargeRequest) bool) []domain.RechargeRequest {
	var out []domain.RechargeRequest
	r.store.view(mt, func(st *state) {
		for id, req := range st.recharges {
			if mt != nil {
				if staged, ok := mt.recharges[id]; ok {
					req = staged
				}
			}
			if keep(&req) {
				out = append(out, req)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *RechargeRepo) ListByCustomer(ctx context.Context, tx pgx.Tx, customerID int64, status *domain.RechargeStatus) ([]domain.RechargeRequest, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	return r.visible(mt, func(req *domain.RechargeRequest) bool {
		return req.CustomerID == customerID && (status == nil || req.Status == *status)
	}), nil
}

func (r *RechargeRepo) List(ctx context.Context, params ports.RechargeListParams) ([]domain.RechargeRequest, int64, error) {
	all := r.visible(nil, func(req *domain.RechargeRequest) bool {
		if params.Status != nil && req.Status != *params.Status {
			return false
		}
		return params.CustomerID == nil || req.CustomerID == *params.CustomerID
	})
	total := int64(len(all))

	offset := (params.Page - 1) * params.PageSize
	if offset < 0 || offset >= len(all) {
		return nil, total, nil
	}
	end := min(offset+params.PageSize, len(all))
	return all[offset:end], total, nil
}
