// Package reservation implements soft-lock inventory holds. A reservation
// row reduces available stock without touching committed stock; it is either
// released (cancel, expiry) or converted into sold stock at finalize.
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

// Request asks to hold Qty units of one product for a transaction.
type Request struct {
	ProductID uuid.UUID
	Qty       int
}

// ShortageDetail is attached to inventory errors so the API can tell the
// buyer which line failed and how many units remain.
type ShortageDetail struct {
	ProductID    uuid.UUID `json:"product_id"`
	RequestedQty int       `json:"requested_qty"`
	AvailableQty int       `json:"available_qty"`
}

// LockForUpdate applies a row lock on dialects that support it. The sqlite
// driver used by tests rejects the FOR UPDATE clause.
func LockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Reserve holds inventory for every request or none of them. Must run inside
// the caller's transaction: each product row is locked, expired holds on it
// are swept, and availability is checked as
// stock - sold - sum(other active unexpired holds).
func Reserve(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, requests []Request, expiresAt time.Time) ([]models.OrderItemReservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reserve requires a transaction handle")
	}
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no reservation requests")
	}

	now := time.Now().UTC()
	created := make([]models.OrderItemReservation, 0, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reservation quantity must be positive, got %d", req.Qty))
		}

		var product models.Product
		err := LockForUpdate(tx.WithContext(ctx)).
			Where("id = ?", req.ProductID).
			First(&product).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", req.ProductID))
			}
			return nil, err
		}

		// Lazy sweep: expired holds on this product stop counting now.
		if err := sweepProduct(ctx, tx, req.ProductID, now); err != nil {
			return nil, err
		}

		var held int64
		err = tx.WithContext(ctx).
			Model(&models.OrderItemReservation{}).
			Where("product_id = ? AND status = ? AND expires_at > ?", req.ProductID, enums.ReservationStatusActive, now).
			Select("COALESCE(SUM(quantity), 0)").
			Scan(&held).Error
		if err != nil {
			return nil, err
		}

		available := product.StockQty - product.SoldQty - int(held)
		if available < req.Qty {
			if available < 0 {
				available = 0
			}
			return nil, pkgerrors.New(pkgerrors.CodeInventory, fmt.Sprintf("product %s has %d available, %d requested", req.ProductID, available, req.Qty)).
				WithDetails(ShortageDetail{
					ProductID:    req.ProductID,
					RequestedQty: req.Qty,
					AvailableQty: available,
				})
		}

		hold := models.OrderItemReservation{
			TransactionID: transactionID,
			ProductID:     req.ProductID,
			Quantity:      req.Qty,
			Status:        enums.ReservationStatusActive,
			ExpiresAt:     expiresAt,
		}
		if err := tx.WithContext(ctx).Create(&hold).Error; err != nil {
			return nil, err
		}
		created = append(created, hold)
	}
	return created, nil
}

// Release frees every active hold of the transaction. Releasing a
// transaction with no active holds is a no-op.
func Release(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&models.OrderItemReservation{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.ReservationStatusActive).
		Update("status", enums.ReservationStatusReleased)
	return result.RowsAffected, result.Error
}

// Convert commits every active hold of the transaction: each hold flips to
// converted and its quantity moves into the product's sold stock. Returns an
// error if no active holds remain or one of them has already expired, so a
// paid-but-stale transaction surfaces instead of silently overselling.
func Convert(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error {
	var holds []models.OrderItemReservation
	err := tx.WithContext(ctx).
		Where("transaction_id = ? AND status = ?", transactionID, enums.ReservationStatusActive).
		Find(&holds).Error
	if err != nil {
		return err
	}
	if len(holds) == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no active reservations to convert")
	}

	now := time.Now().UTC()
	for _, hold := range holds {
		if hold.Expired(now) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("reservation %s expired before conversion", hold.ID))
		}
	}

	for _, hold := range holds {
		err := LockForUpdate(tx.WithContext(ctx)).
			Model(&models.Product{}).
			Where("id = ?", hold.ProductID).
			Update("sold_qty", gorm.Expr("sold_qty + ?", hold.Quantity)).Error
		if err != nil {
			return err
		}
		err = tx.WithContext(ctx).
			Model(&models.OrderItemReservation{}).
			Where("id = ?", hold.ID).
			Update("status", enums.ReservationStatusConverted).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// SweepExpired releases every active hold past its deadline, across all
// transactions. Used by the cron sweeper.
func SweepExpired(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	result := tx.WithContext(ctx).
		Model(&models.OrderItemReservation{}).
		Where("status = ? AND expires_at <= ?", enums.ReservationStatusActive, now).
		Update("status", enums.ReservationStatusReleased)
	return result.RowsAffected, result.Error
}

func sweepProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID, now time.Time) error {
	return tx.WithContext(ctx).
		Model(&models.OrderItemReservation{}).
		Where("product_id = ? AND status = ? AND expires_at <= ?", productID, enums.ReservationStatusActive, now).
		Update("status", enums.ReservationStatusReleased).Error
}
