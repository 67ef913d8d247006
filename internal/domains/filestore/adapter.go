// Package filestore sells digital downloads. Files have no stock; the
// scarcity rule is uniqueness instead: a signed-in buyer gets at most one
// confirmed purchase per file, backed by a partial unique index.
package filestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/internal/pricing"
	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

const expiredReason = "reservation expired"

// Adapter implements the digital download vertical.
type Adapter struct {
	converter *pricing.Converter
	checkout  config.CheckoutConfig
}

// NewAdapter builds the filestore adapter.
func NewAdapter(converter *pricing.Converter, checkout config.CheckoutConfig) (*Adapter, error) {
	if converter == nil {
		return nil, fmt.Errorf("pricing converter required")
	}
	return &Adapter{converter: converter, checkout: checkout}, nil
}

func (a *Adapter) Domain() enums.OrderDomain {
	return enums.OrderDomainFile
}

// Prepare enforces the one-purchase rule and opens a pending order. The
// buyer's own expired pending attempts are auto-cancelled first so a stale
// hold never blocks a fresh checkout.
func (a *Adapter) Prepare(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *payments.CheckoutPayload) (*payments.PrepareResult, error) {
	if payload.File == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file payload required")
	}
	now := time.Now().UTC()

	var item models.FileItem
	err := tx.WithContext(ctx).Where("id = ?", payload.File.FileID).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "file not found")
		}
		return nil, err
	}
	if item.StoreID != txn.StoreID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file belongs to another store")
	}

	if txn.UserID != nil {
		err := tx.WithContext(ctx).
			Model(&models.FileOrder{}).
			Where("file_id = ? AND user_id = ? AND status = ? AND is_temporary_reserved = ? AND reservation_expires_at <= ?",
				item.ID, *txn.UserID, enums.DomainOrderStatusPending, true, now).
			Updates(map[string]any{
				"status":                enums.DomainOrderStatusCancelled,
				"is_temporary_reserved": false,
				"cancelled_at":          now,
				"auto_cancelled_reason": expiredReason,
			}).Error
		if err != nil {
			return nil, err
		}

		var existing int64
		err = tx.WithContext(ctx).
			Model(&models.FileOrder{}).
			Where("file_id = ? AND user_id = ?", item.ID, *txn.UserID).
			Where(
				tx.Session(&gorm.Session{NewDB: true}).
					Where("status IN ?", []enums.DomainOrderStatus{enums.DomainOrderStatusConfirmed, enums.DomainOrderStatusCompleted}).
					Or("status = ? AND is_temporary_reserved = ? AND reservation_expires_at > ?", enums.DomainOrderStatusPending, true, now),
			).
			Count(&existing).Error
		if err != nil {
			return nil, err
		}
		if existing > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "file already purchased or checkout in progress")
		}
	}

	quote, err := a.converter.QuoteSats(ctx, item.PriceMinor, item.PriceCurrency)
	if err != nil {
		return nil, err
	}

	holdUntil := now.Add(a.checkout.DomainReservationTTL())
	order := models.FileOrder{
		FileID:               item.ID,
		UserID:               txn.UserID,
		TransactionID:        &txn.ID,
		Status:               enums.DomainOrderStatusPending,
		IsTemporaryReserved:  true,
		ReservationExpiresAt: &holdUntil,
		PriceSats:            quote.AmountSats,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}

	return &payments.PrepareResult{
		AmountSats:     quote.AmountSats,
		PendingOrderID: &order.ID,
	}, nil
}

// Finalize confirms the pending order. A concurrent confirmed purchase of
// the same file trips the partial unique index and surfaces as an error.
func (a *Adapter) Finalize(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, _ *payments.CheckoutPayload) (uuid.UUID, error) {
	order, err := findByTransaction(ctx, tx, txn.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if order.Status == enums.DomainOrderStatusConfirmed {
		return order.ID, nil
	}
	if order.Status != enums.DomainOrderStatusPending {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase is %s", order.Status))
	}

	now := time.Now().UTC()
	err = tx.WithContext(ctx).
		Model(&models.FileOrder{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusConfirmed,
			"is_temporary_reserved": false,
			"payment_hash":          txn.PaymentHash,
			"payment_request":       txn.PaymentRequest,
			"paid_at":               now,
			"confirmed_at":          now,
		}).Error
	if err != nil {
		return uuid.Nil, err
	}
	return order.ID, nil
}

// Cancel drops the pending purchase; no-op otherwise.
func (a *Adapter) Cancel(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, reason string) error {
	order, err := findByTransaction(ctx, tx, txn.ID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil
		}
		return err
	}
	if order.Status != enums.DomainOrderStatusPending {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.FileOrder{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          time.Now().UTC(),
			"auto_cancelled_reason": reason,
		}).Error
}

// SweepExpired auto-cancels pending purchases past their hold deadline.
func (a *Adapter) SweepExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&models.FileOrder{}).
		Where("status = ? AND is_temporary_reserved = ? AND reservation_expires_at <= ?", enums.DomainOrderStatusPending, true, now).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          now,
			"auto_cancelled_reason": expiredReason,
		})
	return result.RowsAffected, result.Error
}

func findByTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.FileOrder, error) {
	var order models.FileOrder
	err := tx.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found")
		}
		return nil, err
	}
	return &order, nil
}
