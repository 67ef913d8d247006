package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/voltcart/voltcart-backend/internal/payments/reservation"
	"github.com/voltcart/voltcart-backend/pkg/db/models"
	"github.com/voltcart/voltcart-backend/pkg/enums"
	pkgerrors "github.com/voltcart/voltcart-backend/pkg/errors"
)

// Repository persists payment transactions and their stage logs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) (*models.PaymentTransaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByPaymentHash(ctx context.Context, hash string) (*models.PaymentTransaction, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	AppendStageLog(ctx context.Context, log *models.PaymentStageLog) error
	ListStageLogs(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentStageLog, error)
	ListExpiredPending(ctx context.Context, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Preload("Reservations").
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &txn, nil
}

// FindByIDForUpdate reads the transaction under a row lock so concurrent
// finalize attempts serialize on it.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := reservation.LockForUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByPaymentHash(ctx context.Context, hash string) (*models.PaymentTransaction, error) {
	if hash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment hash required")
	}
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_hash = ?", hash).
		First(&txn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *repository) AppendStageLog(ctx context.Context, log *models.PaymentStageLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) ListStageLogs(ctx context.Context, transactionID uuid.UUID) ([]models.PaymentStageLog, error) {
	var logs []models.PaymentStageLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("stage ASC, created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// ListExpiredPending returns transactions whose soft lock has lapsed while
// they are still pre-settlement. The cron sweeper cancels them.
func (r *repository) ListExpiredPending(ctx context.Context, limit int) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	query := r.db.WithContext(ctx).
		Where("status IN ?", []enums.TransactionStatus{enums.TransactionStatusPending, enums.TransactionStatusProcessing}).
		Where("current_stage < ?", int(enums.StageSettlement)).
		Where("soft_lock_expires_at <= ?", time.Now().UTC()).
		Order("soft_lock_expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
