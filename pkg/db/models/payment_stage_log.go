package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/voltcart/voltcart-backend/pkg/enums"
)

// PaymentStageLog is the immutable audit record of one stage transition
// attempt. Rows are append-only; the latest row per (transaction, stage) is
// authoritative for what happened at that stage.
type PaymentStageLog struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID          `gorm:"column:transaction_id;type:uuid;not null;index:idx_stage_logs_txn_stage,priority:1"`
	Stage         enums.PaymentStage `gorm:"column:stage;not null;index:idx_stage_logs_txn_stage,priority:2"`
	Status        enums.StageStatus  `gorm:"column:status;type:text;not null"`
	Message       string             `gorm:"column:message;not null"`
	Detail        json.RawMessage    `gorm:"column:detail;type:jsonb"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}
