package reservation

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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservation_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.OrderItemReservation{}))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock, sold int) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:       uuid.New(),
		StoreID:  uuid.New(),
		Title:    "widget",
		StockQty: stock,
		SoldQty:  sold,
	}
	require.NoError(t, db.Create(&product).Error)
	return product.ID
}

func TestReserveHoldsStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 5, 1)
	txnID := uuid.New()
	expiresAt := time.Now().UTC().Add(15 * time.Minute)

	err := db.Transaction(func(tx *gorm.DB) error {
		holds, err := Reserve(ctx, tx, txnID, []Request{{ProductID: productID, Qty: 3}}, expiresAt)
		if err != nil {
			return err
		}
		require.Len(t, holds, 1)
		assert.Equal(t, enums.ReservationStatusActive, holds[0].Status)
		return nil
	})
	require.NoError(t, err)

	// 5 stock - 1 sold - 3 held leaves 1 available; asking 2 must fail.
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := Reserve(ctx, tx, uuid.New(), []Request{{ProductID: productID, Qty: 2}}, expiresAt)
		return err
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInventory), "got %v, want inventory error", err)
}

func TestReserveAllOrNothing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	plenty := seedProduct(t, db, 10, 0)
	scarce := seedProduct(t, db, 1, 1)
	expiresAt := time.Now().UTC().Add(15 * time.Minute)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Reserve(ctx, tx, uuid.New(), []Request{
			{ProductID: plenty, Qty: 2},
			{ProductID: scarce, Qty: 1},
		}, expiresAt)
		return err
	})
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInventory), "got %v, want inventory error", err)

	var count int64
	require.NoError(t, db.Model(&models.OrderItemReservation{}).Count(&count).Error)
	assert.Zero(t, count, "rollback must leave no holds")
}

func TestReserveSweepsExpiredHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 1, 0)
	staleTxn := uuid.New()

	stale := models.OrderItemReservation{
		ID:            uuid.New(),
		TransactionID: staleTxn,
		ProductID:     productID,
		Quantity:      1,
		Status:        enums.ReservationStatusActive,
		ExpiresAt:     time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&stale).Error)

	// The expired hold must not block the last unit.
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Reserve(ctx, tx, uuid.New(), []Request{{ProductID: productID, Qty: 1}}, time.Now().UTC().Add(15*time.Minute))
		return err
	})
	require.NoError(t, err)

	var swept models.OrderItemReservation
	require.NoError(t, db.First(&swept, "id = ?", stale.ID).Error)
	assert.Equal(t, enums.ReservationStatusReleased, swept.Status)
}

func TestReserveValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 5, 0)
	expiresAt := time.Now().UTC().Add(15 * time.Minute)

	_, err := Reserve(ctx, db, uuid.New(), []Request{{ProductID: productID, Qty: 0}}, expiresAt)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "zero qty: got %v", err)

	_, err = Reserve(ctx, db, uuid.New(), []Request{{ProductID: uuid.New(), Qty: 1}}, expiresAt)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "unknown product: got %v", err)
}

func TestReleaseFreesHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 2, 0)
	txnID := uuid.New()
	expiresAt := time.Now().UTC().Add(15 * time.Minute)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Reserve(ctx, tx, txnID, []Request{{ProductID: productID, Qty: 2}}, expiresAt)
		return err
	})
	require.NoError(t, err)

	released, err := Release(ctx, db, txnID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, released)

	// Repeat release is a no-op.
	released, err = Release(ctx, db, txnID)
	require.NoError(t, err)
	assert.Zero(t, released)

	// Freed stock is reservable again.
	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := Reserve(ctx, tx, uuid.New(), []Request{{ProductID: productID, Qty: 2}}, expiresAt)
		return err
	})
	require.NoError(t, err, "re-reserve after release")
}

func TestConvertCommitsStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 5, 1)
	txnID := uuid.New()
	expiresAt := time.Now().UTC().Add(15 * time.Minute)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Reserve(ctx, tx, txnID, []Request{{ProductID: productID, Qty: 2}}, expiresAt)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return Convert(ctx, tx, txnID)
	}))

	var product models.Product
	require.NoError(t, db.First(&product, "id = ?", productID).Error)
	assert.Equal(t, 3, product.SoldQty)

	var hold models.OrderItemReservation
	require.NoError(t, db.First(&hold, "transaction_id = ?", txnID).Error)
	assert.Equal(t, enums.ReservationStatusConverted, hold.Status)
}

func TestConvertRejectsExpiredOrMissingHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 5, 0)

	err := Convert(ctx, db, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "missing holds: got %v", err)

	txnID := uuid.New()
	expired := models.OrderItemReservation{
		ID:            uuid.New(),
		TransactionID: txnID,
		ProductID:     productID,
		Quantity:      1,
		Status:        enums.ReservationStatusActive,
		ExpiresAt:     time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&expired).Error)
	err = Convert(ctx, db, txnID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict), "expired hold: got %v", err)
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	productID := seedProduct(t, db, 5, 0)
	now := time.Now().UTC()

	for _, hold := range []models.OrderItemReservation{
		{ID: uuid.New(), TransactionID: uuid.New(), ProductID: productID, Quantity: 1, Status: enums.ReservationStatusActive, ExpiresAt: now.Add(-time.Hour)},
		{ID: uuid.New(), TransactionID: uuid.New(), ProductID: productID, Quantity: 1, Status: enums.ReservationStatusActive, ExpiresAt: now.Add(time.Hour)},
	} {
		require.NoError(t, db.Create(&hold).Error)
	}

	swept, err := SweepExpired(ctx, db, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)
}
