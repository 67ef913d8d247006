package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// OrderItemReservation is a time-bounded soft lock of N units of one product,
// scoped to a single payment transaction. Active rows reduce available stock
// without reducing committed stock.
type OrderItemReservation struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID               `gorm:"column:transaction_id;type:uuid;not null;index"`
	ProductID     uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity      int                     `gorm:"column:quantity;not null"`
	Status        enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt     time.Time               `gorm:"column:expires_at;not null"`
	Metadata      json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// Expired reports whether the soft lock has passed its deadline.
func (r *OrderItemReservation) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
