// Package retail sells stock-tracked products. Capacity is held through
// generic inventory reservations; the order row itself is created confirmed
// at finalize time.
package retail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/internal/payments/reservation"
	"github.com/voltcart/voltcart-backend/internal/pricing"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

// Adapter implements the retail vertical.
type Adapter struct {
	converter *pricing.Converter
}

// NewAdapter builds the retail adapter.
func NewAdapter(converter *pricing.Converter) (*Adapter, error) {
	if converter == nil {
		return nil, fmt.Errorf("pricing converter required")
	}
	return &Adapter{converter: converter}, nil
}

func (a *Adapter) Domain() enums.OrderDomain {
	return enums.OrderDomainRetail
}

// Prepare quotes every cart line from the catalog, writes the quoted prices
// back into the payload and reserves stock until the soft lock lapses.
func (a *Adapter) Prepare(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *payments.CheckoutPayload) (*payments.PrepareResult, error) {
	if payload.Retail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "retail payload required")
	}

	var totalSats int64
	requests := make([]reservation.Request, 0, len(payload.Retail.Lines))
	for i := range payload.Retail.Lines {
		line := &payload.Retail.Lines[i]

		var product models.Product
		err := tx.WithContext(ctx).Where("id = ?", line.ProductID).First(&product).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", line.ProductID))
			}
			return nil, err
		}
		if product.StoreID != txn.StoreID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s belongs to another store", line.ProductID))
		}

		quote, err := a.converter.QuoteSats(ctx, product.PriceMinor*int64(line.Quantity), product.PriceCurrency)
		if err != nil {
			return nil, err
		}
		totalSats += quote.AmountSats

		line.UnitPriceMinor = product.PriceMinor
		line.PriceCurrency = product.PriceCurrency

		requests = append(requests, reservation.Request{ProductID: line.ProductID, Qty: line.Quantity})
	}

	if _, err := reservation.Reserve(ctx, tx, txn.ID, requests, txn.SoftLockExpiresAt); err != nil {
		return nil, err
	}
	return &payments.PrepareResult{AmountSats: totalSats}, nil
}

// Finalize converts the holds into sold stock and creates the confirmed
// order with the quoted cart snapshot.
func (a *Adapter) Finalize(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *payments.CheckoutPayload) (uuid.UUID, error) {
	if err := reservation.Convert(ctx, tx, txn.ID); err != nil {
		return uuid.Nil, err
	}

	snapshot, err := json.Marshal(payload.Retail)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}

	now := time.Now().UTC()
	order := models.RetailOrder{
		TransactionID:  txn.ID,
		UserID:         txn.UserID,
		StoreID:        txn.StoreID,
		Status:         enums.DomainOrderStatusConfirmed,
		TotalSats:      txn.AmountSats,
		CartSnapshot:   snapshot,
		PaymentHash:    txn.PaymentHash,
		PaymentRequest: txn.PaymentRequest,
		ConfirmedAt:    &now,
	}
	if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
		return uuid.Nil, err
	}
	return order.ID, nil
}

// Cancel releases whatever holds are still active. Safe to repeat.
func (a *Adapter) Cancel(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, _ string) error {
	_, err := reservation.Release(ctx, tx, txn.ID)
	return err
}
