package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// Lecture is a live-streamed class with limited attendance.
type Lecture struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID uuid.UUID `gorm:"column:store_id;type:uuid;not null;index"`

	Title         string         `gorm:"column:title;not null"`
	StartsAt      time.Time      `gorm:"column:starts_at;not null"`
	Capacity      int            `gorm:"column:capacity;not null;default:0"`
	PriceMinor    int64          `gorm:"column:price_minor;not null"`
	PriceCurrency enums.Currency `gorm:"column:price_currency;type:text;not null;default:'JPY'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LectureOrder is an attendance registration, same reservation shape as
// MeetupOrder. Re-registration after cancellation is allowed.
type LectureOrder struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	LectureID uuid.UUID  `gorm:"column:lecture_id;type:uuid;not null;index"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid;index"`

	TransactionID *uuid.UUID `gorm:"column:transaction_id;type:uuid;index"`

	Status               enums.DomainOrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	IsTemporaryReserved  bool                    `gorm:"column:is_temporary_reserved;not null;default:true"`
	ReservationExpiresAt *time.Time              `gorm:"column:reservation_expires_at"`

	PriceSats      int64  `gorm:"column:price_sats;not null"`
	ParticipantRaw string `gorm:"column:participant_raw"`

	PaymentHash    string `gorm:"column:payment_hash"`
	PaymentRequest string `gorm:"column:payment_request"`

	PaidAt              *time.Time `gorm:"column:paid_at"`
	ConfirmedAt         *time.Time `gorm:"column:confirmed_at"`
	CancelledAt         *time.Time `gorm:"column:cancelled_at"`
	AutoCancelledReason *string    `gorm:"column:auto_cancelled_reason"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HoldsSeat reports whether the order still counts against lecture capacity.
func (o *LectureOrder) HoldsSeat(now time.Time) bool {
	if o.Status == enums.DomainOrderStatusConfirmed || o.Status == enums.DomainOrderStatusCompleted {
		return true
	}
	if o.Status != enums.DomainOrderStatusPending || !o.IsTemporaryReserved {
		return false
	}
	return o.ReservationExpiresAt == nil || now.Before(*o.ReservationExpiresAt)
}
