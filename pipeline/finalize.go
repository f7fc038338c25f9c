package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-pipeline/models"

	"github.com/sirupsen/logrus"
)

type FinalizerConfig struct {
	Lines  OrderLineStore
	Now    func() time.Time
	Logger logrus.FieldLogger
}

// Finalizer marks every line of an order completed.
type Finalizer struct {
	lines OrderLineStore
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	f := &Finalizer{
		lines: cfg.Lines,
		now:   cfg.Now,
		log:   cfg.Logger,
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.log == nil {
		f.log = logrus.StandardLogger()
	}
	f.log = f.log.WithField("stage", "finalize")
	return f
}

// Handle finalizes the order named by a finalize signal. An order without
// lines is a no-op, it may not be visible yet or may not exist at all.
// Running it twice leaves the same statuses and moves processed_at.
func (f *Finalizer) Handle(ctx context.Context, body []byte) error {
	var signal models.FinalizeSignal
	if err := json.Unmarshal(body, &signal); err != nil {
		recordStage("finalize", outcomeMalformed)
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if signal.OrderID == "" {
		recordStage("finalize", outcomeNoop)
		f.log.Warn("finalize signal without order id, ignored")
		return nil
	}

	log := f.log.WithField("order_id", signal.OrderID)

	n, err := f.lines.MarkOrderCompleted(ctx, signal.OrderID, f.now().UTC())
	if err != nil {
		recordStage("finalize", outcomeFailed)
		return fmt.Errorf("finalize order %s: %w", signal.OrderID, err)
	}

	if n == 0 {
		recordStage("finalize", outcomeNoop)
		log.Info("no lines to finalize")
		return nil
	}

	recordStage("finalize", outcomeProcessed)
	log.WithField("lines", n).Info("order finalized")

	return nil
}
