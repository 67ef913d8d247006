package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/voltcart/voltcart-backend/pkg/db/models"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
	"github.com/voltcart/voltcart-backend/pkg/logger"
)

const defaultExpiryBatchSize = 200

type expiredTransactionLister interface {
	ListExpiredPending(ctx context.Context, limit int) ([]models.PaymentTransaction, error)
}

type transactionCanceller interface {
	CancelTransaction(ctx context.Context, transactionID uuid.UUID, reason string) error
}

// TransactionExpiryJobParams configure the stale transaction canceller.
type TransactionExpiryJobParams struct {
	Logger    *logger.Logger
	Repo      expiredTransactionLister
	Payments  transactionCanceller
	BatchSize int
}

// NewTransactionExpiryJob builds the cron job that fails checkout attempts
// abandoned before the payment was verified.
func NewTransactionExpiryJob(params TransactionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &transactionExpiryJob{
		logg:      params.Logger,
		repo:      params.Repo,
		payments:  params.Payments,
		batchSize: batchSize,
	}, nil
}

type transactionExpiryJob struct {
	logg      *logger.Logger
	repo      expiredTransactionLister
	payments  transactionCanceller
	batchSize int
}

func (j *transactionExpiryJob) Name() string { return "transaction-expiry" }

func (j *transactionExpiryJob) Run(ctx context.Context) error {
	stale, err := j.repo.ListExpiredPending(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("list expired transactions: %w", err)
	}

	var errs []error
	cancelled := 0
	for _, txn := range stale {
		err := j.payments.CancelTransaction(ctx, txn.ID, "soft lock expired")
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			// Settled between the listing and the cancel. Leave it alone.
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel transaction %s: %w", txn.ID, err))
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		j.logg.Info(j.logg.WithField(ctx, "cancelled", cancelled), "cancelled expired transactions")
	}
	return multierr.Combine(errs...)
}
