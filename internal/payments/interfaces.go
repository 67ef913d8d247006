package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	"github.com/voltcart/voltcart-backend/pkg/lightning"
)

// Gateway is the slice of the Lightning client the processor needs.
type Gateway interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string, expiresIn time.Duration) (*lightning.Invoice, error)
	CheckInvoiceStatus(ctx context.Context, paymentHash string) (*lightning.InvoiceStatus, error)
}

// PrepareResult is what a domain adapter produced at stage 1.
type PrepareResult struct {
	// AmountSats is the full charge for the transaction, quoted at prepare
	// time and fixed from then on.
	AmountSats int64
	// PendingOrderID is set by adapters that open their own pending order
	// (meetup, lecture, file); retail creates its order only at finalize.
	PendingOrderID *uuid.UUID
}

// DomainAdapter is one sales vertical plugged into the processor. Every
// method runs inside the processor's database transaction.
type DomainAdapter interface {
	Domain() enums.OrderDomain

	// Prepare validates the payload against the catalog, secures capacity
	// (generic reservations or a pending domain order) and quotes the amount.
	Prepare(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *CheckoutPayload) (*PrepareResult, error)

	// Finalize commits the purchase and returns the confirmed order id.
	Finalize(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, payload *CheckoutPayload) (uuid.UUID, error)

	// Cancel undoes whatever Prepare secured. Must be idempotent.
	Cancel(ctx context.Context, tx *gorm.DB, txn *models.PaymentTransaction, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
