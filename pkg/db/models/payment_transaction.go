package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// PaymentTransaction is the aggregate root for one purchase attempt. It is
// created at stage 1 together with its reservations, mutated only by the
// payment processor, and retained forever for audit.
type PaymentTransaction struct {
	ID      uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID  *uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	StoreID uuid.UUID  `gorm:"column:store_id;type:uuid;not null;index"`

	AmountSats   int64                   `gorm:"column:amount_sats;not null"`
	Currency     enums.Currency          `gorm:"column:currency;type:text;not null;default:'BTC'"`
	Status       enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CurrentStage enums.PaymentStage      `gorm:"column:current_stage;not null;default:1"`
	Domain       enums.OrderDomain       `gorm:"column:domain;type:text;not null"`

	PaymentHash      string     `gorm:"column:payment_hash;index"`
	PaymentRequest   string     `gorm:"column:payment_request"`
	InvoiceExpiresAt *time.Time `gorm:"column:invoice_expires_at"`

	SoftLockExpiresAt time.Time `gorm:"column:soft_lock_expires_at;not null"`

	// Payload is the discriminated checkout snapshot (cart lines, participant
	// data or file reference) decoded again at finalize time.
	Payload json.RawMessage `gorm:"column:payload;type:jsonb"`

	// At most one of the domain order links is ever set, at finalize.
	RetailOrderID  *uuid.UUID `gorm:"column:retail_order_id;type:uuid"`
	MeetupOrderID  *uuid.UUID `gorm:"column:meetup_order_id;type:uuid"`
	LectureOrderID *uuid.UUID `gorm:"column:lecture_order_id;type:uuid"`
	FileOrderID    *uuid.UUID `gorm:"column:file_order_id;type:uuid"`

	// NeedsManualReview marks a paid transaction whose finalize failed after
	// settlement. Funds were received; an operator must restore the order.
	NeedsManualReview bool `gorm:"column:needs_manual_review;not null;default:false"`

	StageLogs    []PaymentStageLog      `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	Reservations []OrderItemReservation `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// DomainOrderID returns whichever domain order link is set.
func (t *PaymentTransaction) DomainOrderID() *uuid.UUID {
	switch {
	case t.RetailOrderID != nil:
		return t.RetailOrderID
	case t.MeetupOrderID != nil:
		return t.MeetupOrderID
	case t.LectureOrderID != nil:
		return t.LectureOrderID
	case t.FileOrderID != nil:
		return t.FileOrderID
	default:
		return nil
	}
}
