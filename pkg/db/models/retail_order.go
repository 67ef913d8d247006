package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// RetailOrder is the fulfillment record for a retail purchase. Unlike the
// other verticals it has no pending phase of its own: the generic reservation
// holds stock while the buyer pays, and the order row is created confirmed at
// finalize time.
type RetailOrder struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID  `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex"`
	UserID        *uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	StoreID       uuid.UUID  `gorm:"column:store_id;type:uuid;not null;index"`

	Status    enums.DomainOrderStatus `gorm:"column:status;type:text;not null;default:'confirmed'"`
	TotalSats int64                   `gorm:"column:total_sats;not null"`

	// CartSnapshot preserves the lines (product, quantity, unit price) as they
	// were quoted, independent of later product edits.
	CartSnapshot json.RawMessage `gorm:"column:cart_snapshot;type:jsonb"`

	PaymentHash    string `gorm:"column:payment_hash;not null"`
	PaymentRequest string `gorm:"column:payment_request;not null"`

	ConfirmedAt         *time.Time `gorm:"column:confirmed_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at"`
	AutoCancelledReason *string    `gorm:"column:auto_cancelled_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
