package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

type stubPaymentService struct {
	txn       *models.PaymentTransaction
	logs      []models.PaymentStageLog
	createErr error
	cancelErr error

	createInput *payments.CreateTransactionInput
	cancelled   []string
}

func (s *stubPaymentService) CreateTransaction(_ context.Context, input payments.CreateTransactionInput) (*models.PaymentTransaction, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.createInput = &input
	return s.txn, nil
}

func (s *stubPaymentService) IssueInvoice(context.Context, uuid.UUID) (*models.PaymentTransaction, error) {
	return s.txn, nil
}

func (s *stubPaymentService) CheckUserPayment(context.Context, uuid.UUID) (*payments.PaymentCheck, error) {
	return &payments.PaymentCheck{Transaction: s.txn, State: enums.InvoiceStatePending, RawStatus: "PENDING"}, nil
}

func (s *stubPaymentService) MarkSettlement(context.Context, uuid.UUID, json.RawMessage) error {
	return nil
}

func (s *stubPaymentService) FinalizeOrder(context.Context, uuid.UUID) (*models.PaymentTransaction, error) {
	return s.txn, nil
}

func (s *stubPaymentService) CancelTransaction(_ context.Context, _ uuid.UUID, reason string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, reason)
	return nil
}

func (s *stubPaymentService) GetTransaction(context.Context, uuid.UUID) (*models.PaymentTransaction, error) {
	return s.txn, nil
}

func (s *stubPaymentService) GetByPaymentHash(context.Context, string) (*models.PaymentTransaction, error) {
	return s.txn, nil
}

func (s *stubPaymentService) StageLogs(context.Context, uuid.UUID) ([]models.PaymentStageLog, error) {
	return s.logs, nil
}

func controllerTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "api-test", Output: io.Discard})
}

func newCheckoutRouter(svc payments.Service) http.Handler {
	logg := controllerTestLogger()
	r := chi.NewRouter()
	r.Post("/api/v1/checkout", CreateCheckout(svc, logg))
	r.Route("/api/v1/checkout/{transactionID}", func(r chi.Router) {
		r.Get("/", GetCheckout(svc, logg))
		r.Post("/invoice", IssueInvoice(svc, logg))
		r.Get("/payment", CheckPayment(svc, logg))
		r.Post("/cancel", CancelCheckout(svc, logg))
	})
	return r
}

func sampleTransaction() *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:           uuid.New(),
		StoreID:      uuid.New(),
		Domain:       enums.OrderDomainRetail,
		Status:       enums.TransactionStatusProcessing,
		CurrentStage: enums.StagePrepare,
		AmountSats:   21000,
		Currency:     enums.CurrencyBTC,
	}
}

func checkoutBody(storeID uuid.UUID) string {
	productID := uuid.New()
	return fmt.Sprintf(`{
		"store_id": %q,
		"payload": {
			"domain": "retail",
			"retail": {"lines": [{"product_id": %q, "quantity": 2}]}
		}
	}`, storeID, productID)
}

func TestCreateCheckout_ReturnsCreated(t *testing.T) {
	t.Parallel()

	txn := sampleTransaction()
	svc := &stubPaymentService{txn: txn}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody(txn.StoreID)))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.createInput == nil {
		t.Fatalf("expected service call")
	}
	if svc.createInput.UserID != nil {
		t.Fatalf("expected anonymous checkout without identity header")
	}
	var envelope struct {
		Data transactionResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.TransactionID != txn.ID {
		t.Fatalf("expected transaction id in response")
	}
	if envelope.Data.AmountSats != 21000 {
		t.Fatalf("expected quoted amount, got %d", envelope.Data.AmountSats)
	}
}

func TestCreateCheckout_RejectsMalformedBody(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{txn: sampleTransaction()}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"store_id": "nope"`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if svc.createInput != nil {
		t.Fatalf("service must not be called on invalid body")
	}
}

func TestCreateCheckout_MapsInventoryConflict(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{
		createErr: pkgerrors.New(pkgerrors.CodeInventory, "insufficient stock"),
	}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody(uuid.New())))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeInventory) {
		t.Fatalf("expected inventory code, got %s", envelope.Error.Code)
	}
}

func TestIssueInvoice_RejectsBadID(t *testing.T) {
	t.Parallel()

	router := newCheckoutRouter(&stubPaymentService{txn: sampleTransaction()})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/not-a-uuid/invoice", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCheckPayment_ReturnsState(t *testing.T) {
	t.Parallel()

	txn := sampleTransaction()
	router := newCheckoutRouter(&stubPaymentService{txn: txn})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/"+txn.ID.String()+"/payment", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data paymentCheckResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.State != string(enums.InvoiceStatePending) {
		t.Fatalf("expected pending state, got %s", envelope.Data.State)
	}
}

func TestCancelCheckout_DefaultsReason(t *testing.T) {
	t.Parallel()

	txn := sampleTransaction()
	svc := &stubPaymentService{txn: txn}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/"+txn.ID.String()+"/cancel", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.cancelled) != 1 || svc.cancelled[0] != "cancelled by buyer" {
		t.Fatalf("expected default reason, got %v", svc.cancelled)
	}
}

func TestGetCheckout_IncludesStageLogs(t *testing.T) {
	t.Parallel()

	txn := sampleTransaction()
	svc := &stubPaymentService{
		txn: txn,
		logs: []models.PaymentStageLog{
			{TransactionID: txn.ID, Stage: enums.StagePrepare, Status: enums.StageStatusCompleted, Message: "transaction prepared"},
		},
	}
	router := newCheckoutRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/"+txn.ID.String()+"/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var envelope struct {
		Data checkoutDetailResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.StageLogs) != 1 {
		t.Fatalf("expected 1 stage log, got %d", len(envelope.Data.StageLogs))
	}
	if envelope.Data.StageLogs[0].Message != "transaction prepared" {
		t.Fatalf("unexpected stage log message %q", envelope.Data.StageLogs[0].Message)
	}
}
