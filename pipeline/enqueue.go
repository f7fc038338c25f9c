package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-pipeline/models"

	"github.com/sirupsen/logrus"
)

type EnqueuerConfig struct {
	Publisher Publisher
	Queue     string

	// Idempotency is optional. Without it every submit publishes.
	Idempotency IdempotencyStore

	Now        func() time.Time
	NewOrderID func() string
	Logger     logrus.FieldLogger
}

// Enqueuer accepts checkouts and hands them to the checkout queue without
// waiting for them to be processed.
type Enqueuer struct {
	publisher   Publisher
	queue       string
	idempotency IdempotencyStore
	now         func() time.Time
	newOrderID  func() string
	log         logrus.FieldLogger
}

func NewEnqueuer(cfg EnqueuerConfig) *Enqueuer {
	e := &Enqueuer{
		publisher:   cfg.Publisher,
		queue:       cfg.Queue,
		idempotency: cfg.Idempotency,
		now:         cfg.Now,
		newOrderID:  cfg.NewOrderID,
		log:         cfg.Logger,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newOrderID == nil {
		e.newOrderID = models.NewOrderID
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	e.log = e.log.WithField("stage", "enqueue")
	return e
}

// Submit assigns an order id when the request has none, stamps the current
// time and publishes the request. A publish failure is returned wrapped in
// ErrPublish.
//
// A non-empty idempotencyKey that the same customer already used returns
// the order id of the earlier submission and publishes nothing. Keys of
// different customers never collide.
func (e *Enqueuer) Submit(ctx context.Context, req models.CheckoutRequest, idempotencyKey string) (models.CheckoutReceipt, error) {
	if req.OrderID == "" {
		req.OrderID = e.newOrderID()
	}
	now := e.now().UTC()
	req.Timestamp = &now

	log := e.log.WithField("order_id", req.OrderID)

	claimed := false
	if idempotencyKey != "" && e.idempotency != nil {
		idempotencyKey = IdempotencyScope(req.Customer, idempotencyKey)

		existing, ok, err := e.idempotency.Claim(ctx, idempotencyKey, req.OrderID)
		switch {
		case err != nil:
			log.WithError(err).Warn("idempotency store unavailable, submitting without key")
		case !ok:
			log.WithField("existing_order_id", existing).Info("duplicate checkout submission")
			checkoutsSubmitted.WithLabelValues("duplicate").Inc()
			return models.CheckoutReceipt{Accepted: true, OrderID: existing}, nil
		default:
			claimed = true
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		e.release(ctx, claimed, idempotencyKey)
		return models.CheckoutReceipt{}, fmt.Errorf("json.Marshal: %w", err)
	}

	if err := e.publisher.Publish(ctx, e.queue, MessageTypeCheckout, body); err != nil {
		e.release(ctx, claimed, idempotencyKey)
		checkoutsSubmitted.WithLabelValues("error").Inc()
		log.WithError(err).Error("failed to publish checkout")
		return models.CheckoutReceipt{}, fmt.Errorf("%w: %w", ErrPublish, err)
	}

	checkoutsSubmitted.WithLabelValues("accepted").Inc()
	log.WithFields(logrus.Fields{
		"customer": req.Customer,
		"items":    len(req.Items),
	}).Info("checkout enqueued")

	return models.CheckoutReceipt{Accepted: true, OrderID: req.OrderID}, nil
}

func (e *Enqueuer) release(ctx context.Context, claimed bool, key string) {
	if !claimed {
		return
	}
	// the caller's context may be the reason the publish failed
	ctx = context.WithoutCancel(ctx)
	if err := e.idempotency.Release(ctx, key); err != nil {
		e.log.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
	}
}

// IdempotencyScope is the store key of a customer's idempotency key.
func IdempotencyScope(customer, key string) string {
	return customer + ":" + key
}
