package postgres

import (
	"context"
	"testing"
	"time"

	"customer-wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create_InTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepository(mock)
	admin := int64(9)
	log := &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &admin,
		ActorRole:    domain.RoleFinancialReviewer,
		Action:       domain.AuditActionRechargeApprove,
		ResourceType: "recharge_request",
		ResourceID:   "31",
		Details:      `{"amount":"50000"}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(log.ID, log.ActorID, pgxmock.AnyArg(), string(log.Action), log.ResourceType,
			log.ResourceID, pgxmock.AnyArg(), log.IPAddress, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Create(context.Background(), tx, log))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_WithoutTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepository(mock)
	log := &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionViewStats,
		ResourceType: "wallet",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(log.ID, log.ActorID, (*string)(nil), string(log.Action), log.ResourceType,
			log.ResourceID, (*string)(nil), log.IPAddress, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), nil, log))
	assert.NoError(t, mock.ExpectationsWereMet())
}
