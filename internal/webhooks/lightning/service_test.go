package lightningwebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

type stubProcessor struct {
	txn *models.PaymentTransaction

	checkState  enums.InvoiceState
	checkErr    error
	settleErr   error
	finalizeErr error
	cancelErr   error

	settled   []json.RawMessage
	finalized int
	cancelled []string
}

func (s *stubProcessor) GetByPaymentHash(_ context.Context, paymentHash string) (*models.PaymentTransaction, error) {
	if s.txn == nil || s.txn.PaymentHash != paymentHash {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return s.txn, nil
}

func (s *stubProcessor) CheckUserPayment(context.Context, uuid.UUID) (*payments.PaymentCheck, error) {
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	return &payments.PaymentCheck{Transaction: s.txn, State: s.checkState, RawStatus: string(s.checkState)}, nil
}

func (s *stubProcessor) MarkSettlement(_ context.Context, _ uuid.UUID, detail json.RawMessage) error {
	if s.settleErr != nil {
		return s.settleErr
	}
	s.settled = append(s.settled, detail)
	return nil
}

func (s *stubProcessor) FinalizeOrder(context.Context, uuid.UUID) (*models.PaymentTransaction, error) {
	if s.finalizeErr != nil {
		return nil, s.finalizeErr
	}
	s.finalized++
	return s.txn, nil
}

func (s *stubProcessor) CancelTransaction(_ context.Context, _ uuid.UUID, reason string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, reason)
	return nil
}

func webhookTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
}

func newStubProcessor(state enums.InvoiceState) *stubProcessor {
	return &stubProcessor{
		txn: &models.PaymentTransaction{
			ID:          uuid.New(),
			PaymentHash: "abc123",
		},
		checkState: state,
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, webhookTestLogger()); err == nil {
		t.Fatalf("expected error for nil processor")
	}
	if _, err := NewService(newStubProcessor(enums.InvoiceStatePaid), nil); err == nil {
		t.Fatalf("expected error for nil logger")
	}
}

func TestService_PaidEventSettlesAndFinalizes(t *testing.T) {
	t.Parallel()

	processor := newStubProcessor(enums.InvoiceStatePaid)
	svc, err := NewService(processor, webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := &Event{EventID: "evt_1", Type: "invoice.paid", PaymentHash: "abc123", Status: "PAID"}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(processor.settled) != 1 {
		t.Fatalf("expected one settlement, got %d", len(processor.settled))
	}
	if processor.finalized != 1 {
		t.Fatalf("expected finalize, got %d calls", processor.finalized)
	}

	var recorded Event
	if err := json.Unmarshal(processor.settled[0], &recorded); err != nil {
		t.Fatalf("decode settlement detail: %v", err)
	}
	if recorded.EventID != "evt_1" {
		t.Fatalf("expected event recorded in settlement detail, got %q", recorded.EventID)
	}
}

func TestService_PaidEventRequiresGatewayConfirmation(t *testing.T) {
	t.Parallel()

	processor := newStubProcessor(enums.InvoiceStatePending)
	svc, err := NewService(processor, webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := &Event{EventID: "evt_2", Type: "invoice.paid", PaymentHash: "abc123"}
	err = svc.HandleEvent(context.Background(), event)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(processor.settled) != 0 || processor.finalized != 0 {
		t.Fatalf("expected no settlement on unconfirmed payment")
	}
}

func TestService_PaidEventStopsOnSettlementError(t *testing.T) {
	t.Parallel()

	processor := newStubProcessor(enums.InvoiceStatePaid)
	processor.settleErr = errors.New("db down")
	svc, err := NewService(processor, webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := &Event{EventID: "evt_3", Type: "invoice.paid", PaymentHash: "abc123"}
	if err := svc.HandleEvent(context.Background(), event); err == nil {
		t.Fatalf("expected settlement error to surface")
	}
	if processor.finalized != 0 {
		t.Fatalf("finalize must not run after failed settlement")
	}
}

func TestService_ExpiredEventCancels(t *testing.T) {
	t.Parallel()

	processor := newStubProcessor(enums.InvoiceStateExpired)
	svc, err := NewService(processor, webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := &Event{EventID: "evt_4", Type: "invoice.expired", PaymentHash: "abc123"}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(processor.cancelled) != 1 || processor.cancelled[0] != "invoice expired" {
		t.Fatalf("expected cancellation, got %v", processor.cancelled)
	}
}

func TestService_ExpiredEventToleratesSettledRace(t *testing.T) {
	t.Parallel()

	processor := newStubProcessor(enums.InvoiceStatePaid)
	processor.txn.Status = enums.TransactionStatusCompleted
	processor.txn.CurrentStage = enums.StageFinalize
	svc, err := NewService(processor, webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	// The expiry callback arrived after settlement already went through.
	event := &Event{EventID: "evt_5", Type: "invoice.expired", PaymentHash: "abc123"}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("expected race to be absorbed, got %v", err)
	}
	if len(processor.cancelled) != 0 {
		t.Fatalf("settled transaction must not be cancelled, got %v", processor.cancelled)
	}
}

func TestService_UnknownEventIsAcknowledged(t *testing.T) {
	t.Parallel()

	processor := newStubProcessor(enums.InvoiceStatePaid)
	svc, err := NewService(processor, webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	event := &Event{EventID: "evt_6", Type: "wallet.rebalanced", PaymentHash: "abc123"}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown events must be dropped, got %v", err)
	}
	if len(processor.settled) != 0 || processor.finalized != 0 || len(processor.cancelled) != 0 {
		t.Fatalf("unknown events must not touch the processor")
	}
}

func TestService_RejectsMissingHash(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newStubProcessor(enums.InvoiceStatePaid), webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	err = svc.HandleEvent(context.Background(), &Event{EventID: "evt_7", Type: "invoice.paid"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_UnknownHashSurfacesNotFound(t *testing.T) {
	t.Parallel()

	svc, err := NewService(newStubProcessor(enums.InvoiceStatePaid), webhookTestLogger())
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}

	err = svc.HandleEvent(context.Background(), &Event{EventID: "evt_8", Type: "invoice.paid", PaymentHash: "missing"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
