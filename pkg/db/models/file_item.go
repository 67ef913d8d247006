package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// FileItem is a purchasable digital download. Files have no stock; scarcity
// is the uniqueness rule instead: one confirmed purchase per (file, user).
type FileItem struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`

	Title         string         `gorm:"column:title;not null"`
	PriceMinor    int64          `gorm:"column:price_minor;not null"`
	PriceCurrency enums.Currency `gorm:"column:price_currency;type:text;not null;default:'JPY'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// FileOrder is a download entitlement purchase.
type FileOrder struct {
	ID     uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	FileID uuid.UUID  `gorm:"column:file_id;type:uuid;not null;index:idx_file_orders_file_user,priority:1"`
	UserID *uuid.UUID `gorm:"column:user_id;type:uuid;index:idx_file_orders_file_user,priority:2"`

	TransactionID *uuid.UUID `gorm:"column:transaction_id;type:uuid;index"`

	Status               enums.DomainOrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	IsTemporaryReserved  bool                    `gorm:"column:is_temporary_reserved;not null;default:true"`
	ReservationExpiresAt *time.Time              `gorm:"column:reservation_expires_at"`

	PriceSats int64 `gorm:"column:price_sats;not null"`

	PaymentHash    string `gorm:"column:payment_hash"`
	PaymentRequest string `gorm:"column:payment_request"`

	PaidAt              *time.Time `gorm:"column:paid_at"`
	ConfirmedAt         *time.Time `gorm:"column:confirmed_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at"`
	AutoCancelledReason *string    `gorm:"column:auto_cancelled_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
