// Package lightningwebhook reconciles settlement notifications from the
// wallet provider with the payment processor.
package lightningwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

// Event is the provider's callback payload.
type Event struct {
	EventID     string `json:"event_id"`
	Type        string `json:"type"`
	PaymentHash string `json:"payment_hash"`
	Status      string `json:"status"`
}

type paymentProcessor interface {
	GetByPaymentHash(ctx context.Context, paymentHash string) (*models.PaymentTransaction, error)
	CheckUserPayment(ctx context.Context, transactionID uuid.UUID) (*payments.PaymentCheck, error)
	MarkSettlement(ctx context.Context, transactionID uuid.UUID, detail json.RawMessage) error
	FinalizeOrder(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	CancelTransaction(ctx context.Context, transactionID uuid.UUID, reason string) error
}

// Service drives the stage 3-5 reconciliation when the provider calls back.
type Service struct {
	processor paymentProcessor
	logg      *logger.Logger
}

// NewService builds the webhook service.
func NewService(processor paymentProcessor, logg *logger.Logger) (*Service, error) {
	if processor == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{processor: processor, logg: logg}, nil
}

// HandleEvent processes one provider notification. Unknown event types are
// acknowledged and dropped so the provider stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	if event.PaymentHash == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment hash required")
	}

	txn, err := s.processor.GetByPaymentHash(ctx, event.PaymentHash)
	if err != nil {
		return err
	}
	ctx = s.logg.WithTransactionID(ctx, txn.ID.String())

	switch strings.ToLower(event.Type) {
	case "invoice.paid":
		return s.settle(ctx, txn.ID, event)
	case "invoice.expired":
		if txn.Status == enums.TransactionStatusCompleted || txn.CurrentStage >= enums.StageSettlement {
			// An expiry callback racing settlement loses.
			s.logg.Warn(ctx, "expiry notification for settled transaction ignored")
			return nil
		}
		return s.processor.CancelTransaction(ctx, txn.ID, "invoice expired")
	default:
		s.logg.Info(ctx, fmt.Sprintf("ignoring lightning event type %q", event.Type))
		return nil
	}
}

func (s *Service) settle(ctx context.Context, transactionID uuid.UUID, event *Event) error {
	// Never trust the callback alone: re-verify with the gateway first.
	check, err := s.processor.CheckUserPayment(ctx, transactionID)
	if err != nil {
		return err
	}
	if check.State != enums.InvoiceStatePaid {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("gateway reports invoice %s, not paid", check.State))
	}

	detail, _ := json.Marshal(event)
	if err := s.processor.MarkSettlement(ctx, transactionID, detail); err != nil {
		return err
	}
	if _, err := s.processor.FinalizeOrder(ctx, transactionID); err != nil {
		return err
	}

	s.logg.Info(ctx, "settlement reconciled")
	return nil
}
