package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"checkout-pipeline/models"
	"checkout-pipeline/repository"

	"github.com/sirupsen/logrus"
)

type ProcessorConfig struct {
	Lines         OrderLineStore
	Inventory     InventoryStore
	Publisher     Publisher
	FinalizeQueue string

	Now        func() time.Time
	NewOrderID func() string
	Logger     logrus.FieldLogger
}

// Processor expands one checkout message into order lines, deducts stock
// per line and signals the finalize stage.
type Processor struct {
	lines         OrderLineStore
	inventory     InventoryStore
	publisher     Publisher
	finalizeQueue string
	now           func() time.Time
	newOrderID    func() string
	log           logrus.FieldLogger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		lines:         cfg.Lines,
		inventory:     cfg.Inventory,
		publisher:     cfg.Publisher,
		finalizeQueue: cfg.FinalizeQueue,
		now:           cfg.Now,
		newOrderID:    cfg.NewOrderID,
		log:           cfg.Logger,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newOrderID == nil {
		p.newOrderID = models.NewOrderID
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	p.log = p.log.WithField("stage", "process")
	return p
}

// Handle processes one checkout message body.
//
// Line ids are derived from the order id and the item position, so a
// redelivered message finds its lines already written and the inventory
// ledger skips deductions it already applied. An order id whose lines
// belong to another customer or product is rejected as malformed. Stock failures are logged and do
// not fail the message; a failed line write or finalize publish does.
func (p *Processor) Handle(ctx context.Context, body []byte) error {
	var req models.CheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		recordStage("process", outcomeMalformed)
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if len(req.Items) == 0 {
		recordStage("process", outcomeDropped)
		p.log.WithField("order_id", req.OrderID).Warn("checkout has no items, dropped")
		return nil
	}

	if req.OrderID == "" {
		req.OrderID = p.newOrderID()
		p.log.WithField("order_id", req.OrderID).Warn("checkout without order id, assigned one")
	}

	createdAt := p.now().UTC()
	if req.Timestamp != nil {
		createdAt = req.Timestamp.UTC()
	}

	log := p.log.WithFields(logrus.Fields{
		"order_id": req.OrderID,
		"customer": req.Customer,
	})

	for i, item := range req.Items {
		line := models.OrderLine{
			LineID:      models.LineID(req.OrderID, i),
			OrderID:     req.OrderID,
			Customer:    req.Customer,
			ProductID:   item.ProductID,
			ProductName: item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.LineTotal(),
			Status:      models.StatusSubmitted,
			CreatedAt:   createdAt,
		}

		err := p.lines.UpsertLine(ctx, line)
		if errors.Is(err, repository.ErrLineConflict) {
			recordStage("process", outcomeMalformed)
			log.WithError(err).WithField("line_id", line.LineID).Error("order id is taken by another checkout")
			return fmt.Errorf("%w: line %d of order %s: %w", ErrMalformedMessage, i, req.OrderID, err)
		}
		if err != nil {
			recordStage("process", outcomeFailed)
			return fmt.Errorf("write line %d of order %s: %w", i, req.OrderID, err)
		}
		orderLinesWritten.Inc()

		p.deductStock(ctx, log, line)
	}

	signal, err := json.Marshal(models.FinalizeSignal{OrderID: req.OrderID})
	if err != nil {
		recordStage("process", outcomeFailed)
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if err := p.publisher.Publish(ctx, p.finalizeQueue, MessageTypeFinalize, signal); err != nil {
		recordStage("process", outcomeFailed)
		return fmt.Errorf("publish finalize for order %s: %w", req.OrderID, err)
	}

	recordStage("process", outcomeProcessed)
	log.WithField("lines", len(req.Items)).Info("checkout processed")

	return nil
}

func (p *Processor) deductStock(ctx context.Context, log logrus.FieldLogger, line models.OrderLine) {
	log = log.WithFields(logrus.Fields{
		"line_id":    line.LineID,
		"product_id": line.ProductID,
	})

	if line.Quantity <= 0 {
		stockDeductions.WithLabelValues("skipped").Inc()
		log.WithField("quantity", line.Quantity).Warn("non-positive quantity, stock left untouched")
		return
	}

	adj, err := p.inventory.AdjustStock(ctx, models.StockDeduction{
		LineID:    line.LineID,
		OrderID:   line.OrderID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
	})
	if err != nil {
		stockDeductions.WithLabelValues(deductionFailure(err)).Inc()
		log.WithError(err).Warn("stock deduction failed, continuing")
		return
	}

	if !adj.Applied {
		stockDeductions.WithLabelValues("duplicate").Inc()
		log.Info("stock already deducted for line")
		return
	}

	stockDeductions.WithLabelValues("applied").Inc()
	log.WithField("remaining", adj.Remaining).Debug("stock deducted")
}

func deductionFailure(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrStockConflict):
		return "conflict"
	default:
		return "error"
	}
}
