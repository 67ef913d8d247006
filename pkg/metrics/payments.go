package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records stage transitions and terminal outcomes for payment
// transactions.
type PaymentMetrics struct {
	stageTransitions *prometheus.CounterVec
	outcomes         *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	stageTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_stage_transitions",
		Help: "Stage transition attempts by stage and status.",
	}, []string{"stage", "status"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes",
		Help: "Terminal transaction outcomes.",
	}, []string{"outcome"})
	reg.MustRegister(stageTransitions, outcomes)
	return &PaymentMetrics{
		stageTransitions: stageTransitions,
		outcomes:         outcomes,
	}
}

// IncStage counts one stage transition attempt.
func (p *PaymentMetrics) IncStage(stage, status string) {
	if p == nil || p.stageTransitions == nil {
		return
	}
	p.stageTransitions.WithLabelValues(normalizeLabel(stage), normalizeLabel(status)).Inc()
}

// IncOutcome counts one terminal outcome (completed, failed, manual_review).
func (p *PaymentMetrics) IncOutcome(outcome string) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}
