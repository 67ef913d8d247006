package payments

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

// CheckoutPayload is the discriminated checkout snapshot persisted on the
// transaction row. Exactly one branch matching Domain must be set; the
// snapshot is decoded again at finalize time, so it must stay self-contained.
type CheckoutPayload struct {
	Domain  enums.OrderDomain    `json:"domain"`
	Retail  *RetailCart          `json:"retail,omitempty"`
	Meetup  *MeetupRegistration  `json:"meetup,omitempty"`
	Lecture *LectureRegistration `json:"lecture,omitempty"`
	File    *FilePurchase        `json:"file,omitempty"`
}

// RetailCart is the quoted cart for a retail purchase.
type RetailCart struct {
	Lines []CartLine `json:"lines"`
}

// CartLine is one quoted cart position.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	// UnitPriceMinor and PriceCurrency snapshot the price as quoted; later
	// product edits do not change what the buyer pays.
	UnitPriceMinor int64          `json:"unit_price_minor"`
	PriceCurrency  enums.Currency `json:"price_currency"`
}

// MeetupRegistration carries the seat request for an in-person event.
type MeetupRegistration struct {
	MeetupID    uuid.UUID       `json:"meetup_id"`
	Participant json.RawMessage `json:"participant,omitempty"`
}

// LectureRegistration carries the attendance request for a lecture.
type LectureRegistration struct {
	LectureID   uuid.UUID       `json:"lecture_id"`
	Participant json.RawMessage `json:"participant,omitempty"`
}

// FilePurchase identifies the digital item being bought.
type FilePurchase struct {
	FileID uuid.UUID `json:"file_id"`
}

// Validate checks the discriminator and the selected branch.
func (p *CheckoutPayload) Validate() error {
	if p == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout payload required")
	}
	if !p.Domain.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order domain %q", p.Domain))
	}

	branches := 0
	if p.Retail != nil {
		branches++
	}
	if p.Meetup != nil {
		branches++
	}
	if p.Lecture != nil {
		branches++
	}
	if p.File != nil {
		branches++
	}
	if branches != 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "checkout payload must carry exactly one domain branch")
	}

	switch p.Domain {
	case enums.OrderDomainRetail:
		if p.Retail == nil {
			return payloadMismatch(p.Domain)
		}
		if len(p.Retail.Lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no lines")
		}
		seen := make(map[uuid.UUID]bool, len(p.Retail.Lines))
		for _, line := range p.Retail.Lines {
			if line.ProductID == uuid.Nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart line missing product id")
			}
			if line.Quantity <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart line quantity must be positive, got %d", line.Quantity))
			}
			if seen[line.ProductID] {
				return pkgerrors.New(pkgerrors.CodeValidation, "cart contains duplicate product lines")
			}
			seen[line.ProductID] = true
		}
	case enums.OrderDomainMeetup:
		if p.Meetup == nil {
			return payloadMismatch(p.Domain)
		}
		if p.Meetup.MeetupID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "meetup id required")
		}
	case enums.OrderDomainLecture:
		if p.Lecture == nil {
			return payloadMismatch(p.Domain)
		}
		if p.Lecture.LectureID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "lecture id required")
		}
	case enums.OrderDomainFile:
		if p.File == nil {
			return payloadMismatch(p.Domain)
		}
		if p.File.FileID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "file id required")
		}
	}
	return nil
}

func payloadMismatch(domain enums.OrderDomain) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payload branch does not match domain %q", domain))
}

// DecodePayload parses a stored payload snapshot.
func DecodePayload(raw json.RawMessage) (*CheckoutPayload, error) {
	if len(raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout payload required")
	}
	var payload CheckoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout payload")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Encode serializes the payload for storage on the transaction row.
func (p *CheckoutPayload) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout payload")
	}
	return raw, nil
}
