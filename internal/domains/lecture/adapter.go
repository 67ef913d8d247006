// Package lecture sells attendance at live-streamed classes. The reservation
// shape mirrors meetups: a pending registration with an unexpired temporary
// hold counts against capacity, and re-registration after cancellation is
// allowed.
package lecture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/internal/payments/reservation"
	"github.com/voltcart/voltcart-backend/internal/pricing"
	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

const expiredReason = "reservation expired"

// Adapter implements the lecture vertical.
type Adapter struct {
	converter *pricing.Converter
	checkout  config.CheckoutConfig
}

// NewAdapter builds the lecture adapter.
func NewAdapter(converter *pricing.Converter, checkout config.CheckoutConfig) (*Adapter, error) {
	if converter == nil {
		return nil, fmt.Errorf("pricing converter required")
	}
	return &Adapter{converter: converter, checkout: checkout}, nil
}

func (a *Adapter) Domain() enums.OrderDomain {
	return enums.OrderDomainLecture
}

// Prepare verifies remaining capacity under a row lock and opens a pending
// registration. The buyer's own expired pending attempts are auto-cancelled
// first.
func (a *Adapter) Prepare(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *payments.CheckoutPayload) (*payments.PrepareResult, error) {
	if payload.Lecture == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lecture payload required")
	}
	now := time.Now().UTC()

	var class models.Lecture
	err := reservation.LockForUpdate(tx.WithContext(ctx)).
		Where("id = ?", payload.Lecture.LectureID).
		First(&class).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "lecture not found")
		}
		return nil, err
	}
	if class.StoreID != txn.StoreID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lecture belongs to another store")
	}
	if !class.StartsAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lecture already started")
	}

	if txn.UserID != nil {
		err := tx.WithContext(ctx).
			Model(&models.LectureOrder{}).
			Where("lecture_id = ? AND user_id = ? AND status = ? AND is_temporary_reserved = ? AND reservation_expires_at <= ?",
				class.ID, *txn.UserID, enums.DomainOrderStatusPending, true, now).
			Updates(map[string]any{
				"status":                enums.DomainOrderStatusCancelled,
				"is_temporary_reserved": false,
				"cancelled_at":          now,
				"auto_cancelled_reason": expiredReason,
			}).Error
		if err != nil {
			return nil, err
		}
	}

	var taken int64
	err = tx.WithContext(ctx).
		Model(&models.LectureOrder{}).
		Where("lecture_id = ?", class.ID).
		Where(
			tx.Session(&gorm.Session{NewDB: true}).
				Where("status IN ?", []enums.DomainOrderStatus{enums.DomainOrderStatusConfirmed, enums.DomainOrderStatusCompleted}).
				Or("status = ? AND is_temporary_reserved = ? AND reservation_expires_at > ?", enums.DomainOrderStatusPending, true, now),
		).
		Count(&taken).Error
	if err != nil {
		return nil, err
	}
	if int(taken) >= class.Capacity {
		return nil, pkgerrors.New(pkgerrors.CodeInventory, fmt.Sprintf("lecture %s is full", class.ID))
	}

	quote, err := a.converter.QuoteSats(ctx, class.PriceMinor, class.PriceCurrency)
	if err != nil {
		return nil, err
	}

	holdUntil := now.Add(a.checkout.DomainReservationTTL())
	order := models.LectureOrder{
		LectureID:            class.ID,
		UserID:               txn.UserID,
		TransactionID:        &txn.ID,
		Status:               enums.DomainOrderStatusPending,
		IsTemporaryReserved:  true,
		ReservationExpiresAt: &holdUntil,
		PriceSats:            quote.AmountSats,
		ParticipantRaw:       string(payload.Lecture.Participant),
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}

	return &payments.PrepareResult{
		AmountSats:     quote.AmountSats,
		PendingOrderID: &order.ID,
	}, nil
}

// Finalize confirms the pending registration.
func (a *Adapter) Finalize(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, _ *payments.CheckoutPayload) (uuid.UUID, error) {
	order, err := findByTransaction(ctx, tx, txn.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if order.Status == enums.DomainOrderStatusConfirmed {
		return order.ID, nil
	}
	if order.Status != enums.DomainOrderStatusPending {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("registration is %s", order.Status))
	}

	now := time.Now().UTC()
	err = tx.WithContext(ctx).
		Model(&models.LectureOrder{}).
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

// Cancel drops the pending registration; no-op otherwise.
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
		Model(&models.LectureOrder{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          time.Now().UTC(),
			"auto_cancelled_reason": reason,
		}).Error
}

// SweepExpired auto-cancels pending registrations past their hold deadline.
func (a *Adapter) SweepExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&models.LectureOrder{}).
		Where("status = ? AND is_temporary_reserved = ? AND reservation_expires_at <= ?", enums.DomainOrderStatusPending, true, now).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          now,
			"auto_cancelled_reason": expiredReason,
		})
	return result.RowsAffected, result.Error
}

func findByTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.LectureOrder, error) {
	var order models.LectureOrder
	err := tx.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "registration not found")
		}
		return nil, err
	}
	return &order, nil
}
