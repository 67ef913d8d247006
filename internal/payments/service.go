package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/pkg/config"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/lightning"
	"github.com/voltcart/voltcart-backend/pkg/logger"
	"github.com/voltcart/voltcart-backend/pkg/metrics"
)

// Service orchestrates the five-stage payment flow. current_stage only moves
// forward; cancellation freezes it where it stood.
type Service interface {
	CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.PaymentTransaction, error)
	IssueInvoice(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	CheckUserPayment(ctx context.Context, transactionID uuid.UUID) (*PaymentCheck, error)
	MarkSettlement(ctx context.Context, transactionID uuid.UUID, detail json.RawMessage) error
	FinalizeOrder(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	CancelTransaction(ctx context.Context, transactionID uuid.UUID, reason string) error
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error)
	GetByPaymentHash(ctx context.Context, paymentHash string) (*models.PaymentTransaction, error)
	StageLogs(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentStageLog, error)
}

// CreateTransactionInput opens a new purchase attempt.
type CreateTransactionInput struct {
	UserID  *uuid.UUID
	StoreID uuid.UUID
	Payload CheckoutPayload
}

// PaymentCheck is the outcome of polling the gateway for an invoice.
type PaymentCheck struct {
	Transaction *models.PaymentTransaction
	State       enums.InvoiceState
	RawStatus   string
}

type service struct {
	tx       txRunner
	repo     Repository
	adapters map[enums.OrderDomain]DomainAdapter
	gateway  Gateway
	checkout config.CheckoutConfig
	logg     *logger.Logger
	payments *metrics.PaymentMetrics
	now      func() time.Time
}

// NewService builds the payment processor.
func NewService(
	tx txRunner,
	repo Repository,
	adapters []DomainAdapter,
	gateway Gateway,
	checkout config.CheckoutConfig,
	logg *logger.Logger,
	payments *metrics.PaymentMetrics,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one domain adapter required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("lightning gateway required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	byDomain := make(map[enums.OrderDomain]DomainAdapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, fmt.Errorf("nil domain adapter")
		}
		domain := adapter.Domain()
		if _, dup := byDomain[domain]; dup {
			return nil, fmt.Errorf("duplicate adapter for domain %s", domain)
		}
		byDomain[domain] = adapter
	}

	return &service{
		tx:       tx,
		repo:     repo,
		adapters: byDomain,
		gateway:  gateway,
		checkout: checkout,
		logg:     logg,
		payments: payments,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) adapterFor(domain enums.OrderDomain) (DomainAdapter, error) {
	adapter, ok := s.adapters[domain]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no adapter registered for domain %q", domain))
	}
	return adapter, nil
}

func (s *service) logStage(ctx context.Context, repo Repository, transactionID uuid.UUID, stage enums.PaymentStage, status enums.StageStatus, message string, detail json.RawMessage) error {
	s.payments.IncStage(stage.String(), status.String())
	return repo.AppendStageLog(ctx, &models.PaymentStageLog{
		TransactionID: transactionID,
		Stage:         stage,
		Status:        status,
		Message:       message,
		Detail:        detail,
	})
}

func (s *service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.PaymentTransaction, error) {
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if err := input.Payload.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(input.Payload.Domain)
	if err != nil {
		return nil, err
	}
	raw, err := input.Payload.Encode()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var result *models.PaymentTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		txn := &models.PaymentTransaction{
			ID:                uuid.New(),
			UserID:            input.UserID,
			StoreID:           input.StoreID,
			Currency:          enums.CurrencyBTC,
			Status:            enums.TransactionStatusPending,
			CurrentStage:      enums.StagePrepare,
			Domain:            input.Payload.Domain,
			Payload:           raw,
			SoftLockExpiresAt: now.Add(s.checkout.SoftLockTTL()),
		}
		if _, err := repo.Create(ctx, txn); err != nil {
			return err
		}
		if err := s.logStage(ctx, repo, txn.ID, enums.StagePrepare, enums.StageStatusProcessing, "preparing checkout", nil); err != nil {
			return err
		}

		prepared, err := adapter.Prepare(ctx, tx, txn, &input.Payload)
		if err != nil {
			return err
		}
		if prepared.AmountSats <= 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "prepared amount must be positive")
		}

		// Adapters fill quoted prices into the payload; persist the final
		// snapshot so finalize replays exactly what was quoted.
		quoted, err := input.Payload.Encode()
		if err != nil {
			return err
		}
		if err := repo.Update(ctx, txn.ID, map[string]any{
			"amount_sats": prepared.AmountSats,
			"payload":     quoted,
			"status":      enums.TransactionStatusProcessing,
		}); err != nil {
			return err
		}
		if err := s.logStage(ctx, repo, txn.ID, enums.StagePrepare, enums.StageStatusCompleted, "checkout prepared", prepareDetail(&input.Payload, prepared.AmountSats)); err != nil {
			return err
		}

		result, err = repo.FindByID(ctx, txn.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTransactionID(ctx, result.ID.String())
	s.logg.Info(s.logg.WithStage(logCtx, enums.StagePrepare.String()), "transaction created")
	return result, nil
}

func (s *service) IssueInvoice(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("transaction is %s", txn.Status))
	}
	if txn.CurrentStage > enums.StageInvoice {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already in progress")
	}
	if txn.SoftLockExpiresAt.Before(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout soft lock expired")
	}

	// Gateway call happens outside any database transaction.
	memo := fmt.Sprintf("voltcart %s %s", txn.Domain, txn.ID)
	invoice, gwErr := s.gateway.CreateInvoice(ctx, txn.AmountSats, memo, s.checkout.InvoiceExpiry())
	if gwErr != nil {
		logErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.logStage(ctx, s.repo.WithTx(tx), txn.ID, enums.StageInvoice, enums.StageStatusFailed, gwErr.Error(), nil)
		})
		if logErr != nil {
			s.logg.Error(ctx, "record invoice failure", logErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, "create invoice")
	}

	var result *models.PaymentTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// Re-issue after expiry simply overwrites the invoice fields.
		if err := repo.Update(ctx, txn.ID, map[string]any{
			"payment_hash":       invoice.PaymentHash,
			"payment_request":    invoice.PaymentRequest,
			"invoice_expires_at": invoice.ExpiresAt,
			"current_stage":      maxStage(txn.CurrentStage, enums.StageInvoice),
		}); err != nil {
			return err
		}
		if err := s.logStage(ctx, repo, txn.ID, enums.StageInvoice, enums.StageStatusCompleted, "invoice issued", nil); err != nil {
			return err
		}
		var err error
		result, err = repo.FindByID(ctx, txn.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTransactionID(ctx, txn.ID.String())
	s.logg.Info(s.logg.WithStage(logCtx, enums.StageInvoice.String()), "invoice issued")
	return result, nil
}

func (s *service) CheckUserPayment(ctx context.Context, transactionID uuid.UUID) (*PaymentCheck, error) {
	txn, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status == enums.TransactionStatusCompleted {
		return &PaymentCheck{Transaction: txn, State: enums.InvoiceStatePaid, RawStatus: "already completed"}, nil
	}
	if txn.Status == enums.TransactionStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already failed")
	}
	if txn.PaymentHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no invoice issued yet")
	}

	status, gwErr := s.gateway.CheckInvoiceStatus(ctx, txn.PaymentHash)
	if gwErr != nil {
		logErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.logStage(ctx, s.repo.WithTx(tx), txn.ID, enums.StagePayment, enums.StageStatusFailed, gwErr.Error(), nil)
		})
		if logErr != nil {
			s.logg.Error(ctx, "record payment-check failure", logErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, "check invoice status")
	}

	detail, _ := json.Marshal(map[string]string{"raw_status": status.RawStatus})

	switch status.State {
	case enums.InvoiceStatePaid:
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Update(ctx, txn.ID, map[string]any{
				"current_stage": maxStage(txn.CurrentStage, enums.StagePayment),
			}); err != nil {
				return err
			}
			return s.logStage(ctx, repo, txn.ID, enums.StagePayment, enums.StageStatusCompleted, "invoice paid", detail)
		})
	case enums.InvoiceStateExpired:
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.logStage(ctx, s.repo.WithTx(tx), txn.ID, enums.StagePayment, enums.StageStatusFailed, "invoice expired", detail)
		})
		if err == nil {
			err = pkgerrors.New(pkgerrors.CodeInvoiceExpired, "invoice expired")
		}
	default:
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.logStage(ctx, s.repo.WithTx(tx), txn.ID, enums.StagePayment, enums.StageStatusProcessing, "awaiting payment", detail)
		})
	}
	if err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByID(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentCheck{Transaction: refreshed, State: status.State, RawStatus: status.RawStatus}, nil
}

func (s *service) MarkSettlement(ctx context.Context, transactionID uuid.UUID, detail json.RawMessage) error {
	txn, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status == enums.TransactionStatusCompleted {
		return nil
	}
	if txn.Status == enums.TransactionStatusFailed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already failed")
	}
	if txn.CurrentStage < enums.StagePayment {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "user payment not confirmed yet")
	}
	if txn.CurrentStage >= enums.StageSettlement {
		// Repeat settlement notifications only add an audit row.
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.logStage(ctx, s.repo.WithTx(tx), txn.ID, enums.StageSettlement, enums.StageStatusCompleted, "settlement re-confirmed", detail)
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Update(ctx, txn.ID, map[string]any{
			"current_stage": enums.StageSettlement,
		}); err != nil {
			return err
		}
		return s.logStage(ctx, repo, txn.ID, enums.StageSettlement, enums.StageStatusCompleted, "merchant settlement recorded", detail)
	})
	if err != nil {
		return err
	}

	logCtx := s.logg.WithTransactionID(ctx, txn.ID.String())
	s.logg.Info(s.logg.WithStage(logCtx, enums.StageSettlement.String()), "settlement recorded")
	return nil
}

func (s *service) FinalizeOrder(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	txn, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status == enums.TransactionStatusCompleted {
		// Duplicate finalize returns the existing result without side effects.
		return txn, nil
	}
	if txn.Status == enums.TransactionStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already failed")
	}
	if txn.CurrentStage < enums.StageSettlement {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settlement not recorded yet")
	}

	adapter, err := s.adapterFor(txn.Domain)
	if err != nil {
		return nil, err
	}

	var result *models.PaymentTransaction
	finErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		// The guard above read a snapshot. Two concurrent finalizes (say,
		// duplicate paid notifications under distinct event ids) both pass
		// it, so re-check under a row lock before touching holds.
		locked, err := repo.FindByIDForUpdate(ctx, txn.ID)
		if err != nil {
			return err
		}
		if locked.Status == enums.TransactionStatusCompleted {
			result = locked
			return nil
		}
		if locked.Status == enums.TransactionStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already failed")
		}

		payload, err := DecodePayload(locked.Payload)
		if err != nil {
			return err
		}
		orderID, err := adapter.Finalize(ctx, tx, locked, payload)
		if err != nil {
			return err
		}

		fields := map[string]any{
			"status":                  enums.TransactionStatusCompleted,
			"current_stage":           enums.StageFinalize,
			linkColumn(locked.Domain): orderID,
		}
		if err := repo.Update(ctx, locked.ID, fields); err != nil {
			return err
		}
		if err := s.logStage(ctx, repo, locked.ID, enums.StageFinalize, enums.StageStatusCompleted, "order finalized", nil); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, locked.ID)
		return err
	})
	if pkgerrors.HasCode(finErr, pkgerrors.CodeStateConflict) {
		return nil, finErr
	}
	if finErr != nil {
		// Funds were received at stage 4. Never lose the transaction: flag it
		// for operators and leave it processing where it stood.
		markErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Update(ctx, txn.ID, map[string]any{"needs_manual_review": true}); err != nil {
				return err
			}
			return s.logStage(ctx, repo, txn.ID, enums.StageFinalize, enums.StageStatusFailed, finErr.Error(), nil)
		})
		if markErr != nil {
			s.logg.Error(ctx, "flag transaction for manual review", markErr)
		}
		s.payments.IncOutcome("manual_review")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, finErr, "finalize order")
	}

	s.payments.IncOutcome("completed")
	logCtx := s.logg.WithTransactionID(ctx, txn.ID.String())
	s.logg.Info(s.logg.WithStage(logCtx, enums.StageFinalize.String()), "order finalized")
	return result, nil
}

func (s *service) CancelTransaction(ctx context.Context, transactionID uuid.UUID, reason string) error {
	if reason == "" {
		reason = "cancelled"
	}
	txn, err := s.repo.FindByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status == enums.TransactionStatusCompleted {
		// Reservations were already converted at finalize. A late cancel
		// leaves the order alone and only records that it was attempted.
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.logStage(ctx, s.repo.WithTx(tx), txn.ID, txn.CurrentStage, enums.StageStatusFailed, reason, nil)
		})
	}
	adapter, err := s.adapterFor(txn.Domain)
	if err != nil {
		return err
	}

	firstCancel := txn.Status != enums.TransactionStatusFailed
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := adapter.Cancel(ctx, tx, txn, reason); err != nil {
			return err
		}
		if firstCancel {
			if err := repo.Update(ctx, txn.ID, map[string]any{
				"status": enums.TransactionStatusFailed,
			}); err != nil {
				return err
			}
		}
		// Stays at the stage it reached; only the audit trail grows.
		return s.logStage(ctx, repo, txn.ID, txn.CurrentStage, enums.StageStatusFailed, reason, nil)
	})
	if err != nil {
		return err
	}

	if firstCancel {
		s.payments.IncOutcome("cancelled")
	}
	logCtx := s.logg.WithTransactionID(ctx, txn.ID.String())
	s.logg.Info(logCtx, "transaction cancelled")
	return nil
}

func (s *service) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*models.PaymentTransaction, error) {
	return s.repo.FindByID(ctx, transactionID)
}

func (s *service) GetByPaymentHash(ctx context.Context, paymentHash string) (*models.PaymentTransaction, error) {
	return s.repo.FindByPaymentHash(ctx, paymentHash)
}

func (s *service) StageLogs(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentStageLog, error) {
	if _, err := s.repo.FindByID(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.repo.ListStageLogs(ctx, transactionID)
}

type preparedItem struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// prepareDetail summarizes what stage 1 held and the quoted amount for the
// stage log's audit payload.
func prepareDetail(payload *CheckoutPayload, amountSats int64) json.RawMessage {
	summary := struct {
		AmountSats int64          `json:"amount_sats"`
		Items      []preparedItem `json:"items,omitempty"`
	}{AmountSats: amountSats}

	switch {
	case payload.Retail != nil:
		for _, line := range payload.Retail.Lines {
			summary.Items = append(summary.Items, preparedItem{ItemID: line.ProductID, Quantity: line.Quantity})
		}
	case payload.Meetup != nil:
		summary.Items = append(summary.Items, preparedItem{ItemID: payload.Meetup.MeetupID, Quantity: 1})
	case payload.Lecture != nil:
		summary.Items = append(summary.Items, preparedItem{ItemID: payload.Lecture.LectureID, Quantity: 1})
	case payload.File != nil:
		summary.Items = append(summary.Items, preparedItem{ItemID: payload.File.FileID, Quantity: 1})
	}

	detail, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	return detail
}

func maxStage(a, b enums.PaymentStage) enums.PaymentStage {
	if a > b {
		return a
	}
	return b
}

func linkColumn(domain enums.OrderDomain) string {
	switch domain {
	case enums.OrderDomainRetail:
		return "retail_order_id"
	case enums.OrderDomainMeetup:
		return "meetup_order_id"
	case enums.OrderDomainLecture:
		return "lecture_order_id"
	default:
		return "file_order_id"
	}
}

var _ Gateway = (*lightning.Client)(nil)
