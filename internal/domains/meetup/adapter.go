// Package meetup sells seats at in-person events. Capacity is held by the
// pending order row itself: a pending registration with an unexpired
// temporary reservation counts against the seat limit.
package meetup

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

// Adapter implements the meetup vertical.
type Adapter struct {
	converter *pricing.Converter
	checkout  config.CheckoutConfig
}

// NewAdapter builds the meetup adapter.
func NewAdapter(converter *pricing.Converter, checkout config.CheckoutConfig) (*Adapter, error) {
	if converter == nil {
		return nil, fmt.Errorf("pricing converter required")
	}
	return &Adapter{converter: converter, checkout: checkout}, nil
}

func (a *Adapter) Domain() enums.OrderDomain {
	return enums.OrderDomainMeetup
}

// Prepare checks remaining seats under a row lock and opens a pending
// registration holding one seat. The same buyer's expired pending attempts
// are cancelled first so they stop blocking re-registration.
func (a *Adapter) Prepare(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *payments.CheckoutPayload) (*payments.PrepareResult, error) {
	if payload.Meetup == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "meetup payload required")
	}
	now := time.Now().UTC()

	var event models.Meetup
	err := reservation.LockForUpdate(tx.WithContext(ctx)).
		Where("id = ?", payload.Meetup.MeetupID).
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "meetup not found")
		}
		return nil, err
	}
	if event.StoreID != txn.StoreID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "meetup belongs to another store")
	}
	if !event.StartsAt.After(now) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "meetup already started")
	}

	if txn.UserID != nil {
		if err := cancelExpiredPending(ctx, tx, event.ID, *txn.UserID, now); err != nil {
			return nil, err
		}
	}

	taken, err := countHeldSeats(ctx, tx, event.ID, now)
	if err != nil {
		return nil, err
	}
	if int(taken) >= event.Capacity {
		return nil, pkgerrors.New(pkgerrors.CodeInventory, fmt.Sprintf("meetup %s is full", event.ID))
	}

	quote, err := a.converter.QuoteSats(ctx, event.PriceMinor, event.PriceCurrency)
	if err != nil {
		return nil, err
	}

	holdUntil := now.Add(a.checkout.DomainReservationTTL())
	order := models.MeetupOrder{
		MeetupID:             event.ID,
		UserID:               txn.UserID,
		TransactionID:        &txn.ID,
		Status:               enums.DomainOrderStatusPending,
		IsTemporaryReserved:  true,
		ReservationExpiresAt: &holdUntil,
		PriceSats:            quote.AmountSats,
		ParticipantRaw:       string(payload.Meetup.Participant),
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}

	return &payments.PrepareResult{
		AmountSats:     quote.AmountSats,
		PendingOrderID: &order.ID,
	}, nil
}

// Finalize confirms the pending registration opened at prepare time.
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
		Model(&models.MeetupOrder{}).
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

// Cancel drops the pending registration. Confirmed registrations and repeat
// cancellations are left untouched.
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
		Model(&models.MeetupOrder{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          time.Now().UTC(),
			"auto_cancelled_reason": reason,
		}).Error
}

// SweepExpired auto-cancels pending registrations whose temporary
// reservation lapsed. Used by the cron sweeper.
func (a *Adapter) SweepExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&models.MeetupOrder{}).
		Where("status = ? AND is_temporary_reserved = ? AND reservation_expires_at <= ?", enums.DomainOrderStatusPending, true, now).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          now,
			"auto_cancelled_reason": expiredReason,
		})
	return result.RowsAffected, result.Error
}

func findByTransaction(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (*models.MeetupOrder, error) {
	var order models.MeetupOrder
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

func cancelExpiredPending(ctx context.Context, tx *gorm.DB, meetupID, userID uuid.UUID, now time.Time) error {
	return tx.WithContext(ctx).
		Model(&models.MeetupOrder{}).
		Where("meetup_id = ? AND user_id = ? AND status = ? AND is_temporary_reserved = ? AND reservation_expires_at <= ?",
			meetupID, userID, enums.DomainOrderStatusPending, true, now).
		Updates(map[string]any{
			"status":                enums.DomainOrderStatusCancelled,
			"is_temporary_reserved": false,
			"cancelled_at":          now,
			"auto_cancelled_reason": expiredReason,
		}).Error
}

func countHeldSeats(ctx context.Context, tx *gorm.DB, meetupID uuid.UUID, now time.Time) (int64, error) {
	var taken int64
	err := tx.WithContext(ctx).
		Model(&models.MeetupOrder{}).
		Where("meetup_id = ?", meetupID).
		Where(
			tx.Session(&gorm.Session{NewDB: true}).
				Where("status IN ?", []enums.DomainOrderStatus{enums.DomainOrderStatusConfirmed, enums.DomainOrderStatusCompleted}).
				Or("status = ? AND is_temporary_reserved = ? AND reservation_expires_at > ?", enums.DomainOrderStatusPending, true, now),
		).
		Count(&taken).Error
	return taken, err
}
