package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/api/middleware"
	"github.com/voltcart/voltcart-backend/api/responses"
	"github.com/voltcart/voltcart-backend/api/validators"
	"github.com/voltcart/voltcart-backend/internal/payments"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

// CreateCheckout opens a payment transaction, reserves inventory and quotes
// the cart in sats.
func CreateCheckout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.CreateTransaction(r.Context(), payments.CreateTransactionInput{
			UserID:  userIDFromRequest(r),
			StoreID: body.StoreID,
			Payload: body.Payload,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newTransactionResponse(txn))
	}
}

// IssueInvoice requests a Lightning invoice for a prepared transaction.
func IssueInvoice(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		transactionID, err := transactionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.IssueInvoice(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// CheckPayment polls the gateway for the transaction's invoice and advances
// the flow if it settled.
func CheckPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		transactionID, err := transactionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		check, err := svc.CheckUserPayment(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := paymentCheckResponse{
			Transaction: newTransactionResponse(check.Transaction),
			State:       string(check.State),
			RawStatus:   check.RawStatus,
		}
		responses.WriteSuccess(w, resp)
	}
}

// CancelCheckout fails the transaction and releases whatever it held.
func CancelCheckout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		transactionID, err := transactionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		reason := validators.SanitizeString(body.Reason, 500)
		if reason == "" {
			reason = "cancelled by buyer"
		}

		if err := svc.CancelTransaction(r.Context(), transactionID, reason); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.GetTransaction(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newTransactionResponse(txn))
	}
}

// GetCheckout returns the transaction with its stage history.
func GetCheckout(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		transactionID, err := transactionIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.GetTransaction(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logs, err := svc.StageLogs(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := checkoutDetailResponse{
			Transaction: newTransactionResponse(txn),
			StageLogs:   newStageLogResponses(logs),
		}
		responses.WriteSuccess(w, resp)
	}
}

type checkoutRequest struct {
	StoreID uuid.UUID                `json:"store_id" validate:"required"`
	Payload payments.CheckoutPayload `json:"payload" validate:"required"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type transactionResponse struct {
	TransactionID     uuid.UUID  `json:"transaction_id"`
	StoreID           uuid.UUID  `json:"store_id"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	Domain            string     `json:"domain"`
	Status            string     `json:"status"`
	CurrentStage      int        `json:"current_stage"`
	AmountSats        int64      `json:"amount_sats"`
	Currency          string     `json:"currency"`
	PaymentHash       string     `json:"payment_hash,omitempty"`
	PaymentRequest    string     `json:"payment_request,omitempty"`
	InvoiceExpiresAt  *time.Time `json:"invoice_expires_at,omitempty"`
	SoftLockExpiresAt time.Time  `json:"soft_lock_expires_at"`
	OrderID           *uuid.UUID `json:"order_id,omitempty"`
	NeedsManualReview bool       `json:"needs_manual_review"`
	CreatedAt         time.Time  `json:"created_at"`
}

type paymentCheckResponse struct {
	Transaction transactionResponse `json:"transaction"`
	State       string              `json:"state"`
	RawStatus   string              `json:"raw_status,omitempty"`
}

type checkoutDetailResponse struct {
	Transaction transactionResponse `json:"transaction"`
	StageLogs   []stageLogResponse  `json:"stage_logs"`
}

type stageLogResponse struct {
	Stage     int             `json:"stage"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func newTransactionResponse(txn *models.PaymentTransaction) transactionResponse {
	if txn == nil {
		return transactionResponse{}
	}
	return transactionResponse{
		TransactionID:     txn.ID,
		StoreID:           txn.StoreID,
		UserID:            txn.UserID,
		Domain:            string(txn.Domain),
		Status:            string(txn.Status),
		CurrentStage:      int(txn.CurrentStage),
		AmountSats:        txn.AmountSats,
		Currency:          string(txn.Currency),
		PaymentHash:       txn.PaymentHash,
		PaymentRequest:    txn.PaymentRequest,
		InvoiceExpiresAt:  txn.InvoiceExpiresAt,
		SoftLockExpiresAt: txn.SoftLockExpiresAt,
		OrderID:           txn.DomainOrderID(),
		NeedsManualReview: txn.NeedsManualReview,
		CreatedAt:         txn.CreatedAt,
	}
}

func newStageLogResponses(logs []models.PaymentStageLog) []stageLogResponse {
	out := make([]stageLogResponse, 0, len(logs))
	for _, entry := range logs {
		out = append(out, stageLogResponse{
			Stage:     int(entry.Stage),
			Status:    string(entry.Status),
			Message:   entry.Message,
			Detail:    entry.Detail,
			CreatedAt: entry.CreatedAt,
		})
	}
	return out
}

func transactionIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "transactionID")
	transactionID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id must be a uuid")
	}
	return transactionID, nil
}

func userIDFromRequest(r *http.Request) *uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &userID
}
