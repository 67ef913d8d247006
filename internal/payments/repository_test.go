package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

func newRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.OrderItemReservation{},
		&models.PaymentTransaction{},
		&models.PaymentStageLog{},
	))
	return db
}

func seedRepoTransaction(t *testing.T, db *gorm.DB) *models.PaymentTransaction {
	t.Helper()
	txn := &models.PaymentTransaction{
		ID:                uuid.New(),
		StoreID:           uuid.New(),
		AmountSats:        2100,
		Currency:          enums.CurrencyBTC,
		Status:            enums.TransactionStatusProcessing,
		CurrentStage:      enums.StagePrepare,
		Domain:            enums.OrderDomainRetail,
		SoftLockExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}
	require.NoError(t, db.Create(txn).Error)
	return txn
}

func appendLog(t *testing.T, repo Repository, txnID uuid.UUID, stage enums.PaymentStage, status enums.StageStatus, at time.Time) {
	t.Helper()
	require.NoError(t, repo.AppendStageLog(context.Background(), &models.PaymentStageLog{
		ID:            uuid.New(),
		TransactionID: txnID,
		Stage:         stage,
		Status:        status,
		Message:       string(status),
		CreatedAt:     at,
	}))
}

func TestListStageLogsOrdersByStageThenTime(t *testing.T) {
	t.Parallel()

	db := newRepoTestDB(t)
	repo := NewRepository(db)
	txn := seedRepoTransaction(t, db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order: a later stage first, then stage 1's rows with
	// the completed row written before the processing row.
	appendLog(t, repo, txn.ID, enums.StageInvoice, enums.StageStatusCompleted, base.Add(2*time.Second))
	appendLog(t, repo, txn.ID, enums.StagePrepare, enums.StageStatusCompleted, base.Add(time.Second))
	appendLog(t, repo, txn.ID, enums.StagePrepare, enums.StageStatusProcessing, base)

	other := seedRepoTransaction(t, db)
	appendLog(t, repo, other.ID, enums.StagePrepare, enums.StageStatusProcessing, base)

	logs, err := repo.ListStageLogs(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, enums.StagePrepare, logs[0].Stage)
	assert.Equal(t, enums.StageStatusProcessing, logs[0].Status)
	assert.Equal(t, enums.StagePrepare, logs[1].Stage)
	assert.Equal(t, enums.StageStatusCompleted, logs[1].Status)
	assert.Equal(t, enums.StageInvoice, logs[2].Stage)
}

func TestFindByIDForUpdate(t *testing.T) {
	t.Parallel()

	db := newRepoTestDB(t)
	repo := NewRepository(db)
	txn := seedRepoTransaction(t, db)

	found, err := repo.FindByIDForUpdate(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, found.ID)
	assert.Equal(t, enums.TransactionStatusProcessing, found.Status)

	_, err = repo.FindByIDForUpdate(context.Background(), uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v, want not found", err)
}
