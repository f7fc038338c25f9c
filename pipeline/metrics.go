package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes.
const (
	outcomeProcessed = "processed"
	outcomeDropped   = "dropped"
	outcomeMalformed = "malformed"
	outcomeFailed    = "failed"
	outcomeNoop      = "noop"
)

var (
	stageMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_pipeline_stage_messages_total",
			Help: "Messages handled per stage by outcome",
		},
		[]string{"stage", "outcome"},
	)

	orderLinesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_pipeline_order_lines_written_total",
			Help: "Order lines written by the process stage",
		},
	)

	stockDeductions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_pipeline_stock_deductions_total",
			Help: "Stock deductions by outcome",
		},
		[]string{"outcome"},
	)

	checkoutsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_pipeline_checkouts_submitted_total",
			Help: "Checkout submissions by result",
		},
		[]string{"result"},
	)
)

func recordStage(stage, outcome string) {
	stageMessages.WithLabelValues(stage, outcome).Inc()
}
