package enums

import "fmt"

// PaymentStage identifies one of the five sequential checkpoints in the payment flow.
type PaymentStage int

const (
	StagePrepare    PaymentStage = 1
	StageInvoice    PaymentStage = 2
	StagePayment    PaymentStage = 3
	StageSettlement PaymentStage = 4
	StageFinalize   PaymentStage = 5
)

var stageNames = map[PaymentStage]string{
	StagePrepare:    "prepare",
	StageInvoice:    "invoice",
	StagePayment:    "user-payment",
	StageSettlement: "merchant-settlement",
	StageFinalize:   "order-finalize",
}

// String implements fmt.Stringer.
func (s PaymentStage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage-%d", int(s))
}

// IsValid reports whether the stage is within the known range.
func (s PaymentStage) IsValid() bool {
	return s >= StagePrepare && s <= StageFinalize
}
