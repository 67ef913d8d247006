package filestore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/internal/pricing"
	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:filestore_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.FileItem{}, &models.FileOrder{}))
	return db
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	converter := pricing.NewConverter(pricing.NewStaticRateSource(map[enums.Currency]decimal.Decimal{
		enums.CurrencyJPY: decimal.NewFromInt(10_000_000),
	}))
	adapter, err := NewAdapter(converter, config.CheckoutConfig{DomainReservationSeconds: 900})
	require.NoError(t, err)
	return adapter
}

func seedFile(t *testing.T, db *gorm.DB, storeID uuid.UUID) *models.FileItem {
	t.Helper()
	item := models.FileItem{
		ID:            uuid.New(),
		StoreID:       storeID,
		Title:         "node operations handbook",
		PriceMinor:    2_000,
		PriceCurrency: enums.CurrencyJPY,
	}
	require.NoError(t, db.Create(&item).Error)
	return &item
}

func testTransaction(storeID uuid.UUID, userID *uuid.UUID) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:                uuid.New(),
		UserID:            userID,
		StoreID:           storeID,
		SoftLockExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}
}

func filePayload(fileID uuid.UUID) *payments.CheckoutPayload {
	return &payments.CheckoutPayload{
		Domain: enums.OrderDomainFile,
		File:   &payments.FilePurchase{FileID: fileID},
	}
}

func TestPrepareAndFinalize(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	adapter := newTestAdapter(t)
	storeID := uuid.New()
	item := seedFile(t, db, storeID)
	userID := uuid.New()
	txn := testTransaction(storeID, &userID)
	txn.PaymentHash = "hash-file"
	txn.PaymentRequest = "lnbc1stub"

	result, err := adapter.Prepare(context.Background(), db, txn, filePayload(item.ID))
	require.NoError(t, err)
	// 2,000 JPY at 10,000,000 JPY/BTC is 0.0002 BTC.
	assert.EqualValues(t, 20_000, result.AmountSats)

	orderID, err := adapter.Finalize(context.Background(), db, txn, nil)
	require.NoError(t, err)

	var order models.FileOrder
	require.NoError(t, db.First(&order, "id = ?", orderID).Error)
	assert.Equal(t, enums.DomainOrderStatusConfirmed, order.Status)
	assert.False(t, order.IsTemporaryReserved)
}

func TestPrepareRejectsDuplicatePurchase(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	adapter := newTestAdapter(t)
	storeID := uuid.New()
	item := seedFile(t, db, storeID)
	userID := uuid.New()

	first := testTransaction(storeID, &userID)
	_, err := adapter.Prepare(context.Background(), db, first, filePayload(item.ID))
	require.NoError(t, err)
	_, err = adapter.Finalize(context.Background(), db, first, nil)
	require.NoError(t, err)

	// Confirmed purchase blocks a second attempt by the same user.
	_, err = adapter.Prepare(context.Background(), db, testTransaction(storeID, &userID), filePayload(item.ID))
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v, want conflict", err)

	// A different user still can buy.
	otherID := uuid.New()
	_, err = adapter.Prepare(context.Background(), db, testTransaction(storeID, &otherID), filePayload(item.ID))
	require.NoError(t, err, "prepare by other user")
}

func TestPrepareRejectsConcurrentPendingHold(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	adapter := newTestAdapter(t)
	storeID := uuid.New()
	item := seedFile(t, db, storeID)
	userID := uuid.New()

	_, err := adapter.Prepare(context.Background(), db, testTransaction(storeID, &userID), filePayload(item.ID))
	require.NoError(t, err)
	_, err = adapter.Prepare(context.Background(), db, testTransaction(storeID, &userID), filePayload(item.ID))
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v, want conflict", err)
}

func TestPrepareReplacesOwnExpiredHold(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	adapter := newTestAdapter(t)
	storeID := uuid.New()
	item := seedFile(t, db, storeID)
	userID := uuid.New()

	lapsed := time.Now().UTC().Add(-time.Minute)
	stale := models.FileOrder{
		ID:                   uuid.New(),
		FileID:               item.ID,
		UserID:               &userID,
		Status:               enums.DomainOrderStatusPending,
		IsTemporaryReserved:  true,
		ReservationExpiresAt: &lapsed,
		PriceSats:            20_000,
	}
	require.NoError(t, db.Create(&stale).Error)

	_, err := adapter.Prepare(context.Background(), db, testTransaction(storeID, &userID), filePayload(item.ID))
	require.NoError(t, err, "prepare over expired hold")

	var reloaded models.FileOrder
	require.NoError(t, db.First(&reloaded, "id = ?", stale.ID).Error)
	assert.Equal(t, enums.DomainOrderStatusCancelled, reloaded.Status)
}

func TestAnonymousBuyersSkipUniqueness(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	adapter := newTestAdapter(t)
	storeID := uuid.New()
	item := seedFile(t, db, storeID)

	_, err := adapter.Prepare(context.Background(), db, testTransaction(storeID, nil), filePayload(item.ID))
	require.NoError(t, err, "first anonymous prepare")
	_, err = adapter.Prepare(context.Background(), db, testTransaction(storeID, nil), filePayload(item.ID))
	require.NoError(t, err, "second anonymous prepare")
}

func TestCancelAndSweep(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	adapter := newTestAdapter(t)
	storeID := uuid.New()
	item := seedFile(t, db, storeID)
	userID := uuid.New()
	txn := testTransaction(storeID, &userID)

	_, err := adapter.Prepare(context.Background(), db, txn, filePayload(item.ID))
	require.NoError(t, err)
	require.NoError(t, adapter.Cancel(context.Background(), db, txn, "abandoned"))
	require.NoError(t, adapter.Cancel(context.Background(), db, txn, "again"), "repeat cancel")

	now := time.Now().UTC()
	lapsed := now.Add(-time.Minute)
	expired := models.FileOrder{
		ID:                   uuid.New(),
		FileID:               item.ID,
		Status:               enums.DomainOrderStatusPending,
		IsTemporaryReserved:  true,
		ReservationExpiresAt: &lapsed,
		PriceSats:            1,
	}
	require.NoError(t, db.Create(&expired).Error)

	swept, err := adapter.SweepExpired(context.Background(), db, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)
}
