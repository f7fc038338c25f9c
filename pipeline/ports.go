// Package pipeline holds the three checkout stages: Enqueue publishes a
// cart to the checkout queue, Process expands it into order lines and
// stock deductions, Finalize marks the lines of an order completed.
//
// Stages own their collaborators through the config structs they are
// built from; nothing here is package level state except metrics.
package pipeline

import (
	"context"
	"errors"
	"time"

	"checkout-pipeline/models"
)

var (
	// ErrMalformedMessage marks a payload that can never be handled, such
	// as one whose order id is taken by another checkout. Consumers
	// dead-letter it instead of requeueing.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrPublish is returned by Submit when the checkout could not be
	// handed to the queue. No order is placed in that case.
	ErrPublish = errors.New("publish checkout")
)

// Message types carried in the AMQP type property.
const (
	MessageTypeCheckout = "checkout"
	MessageTypeFinalize = "finalize"
)

type Publisher interface {
	// Publish blocks until the broker confirmed the message or ctx is done.
	Publish(ctx context.Context, queue, msgType string, body []byte) error
}

type OrderLineStore interface {
	UpsertLine(ctx context.Context, line models.OrderLine) error
	MarkOrderCompleted(ctx context.Context, orderID string, at time.Time) (int64, error)
}

type InventoryStore interface {
	AdjustStock(ctx context.Context, d models.StockDeduction) (models.StockAdjustment, error)
}

// IdempotencyStore binds a client supplied key to the order id of the
// first submission that used it.
type IdempotencyStore interface {
	// Claim stores orderID under key unless the key is taken. It returns
	// the order id bound to the key and whether this call claimed it.
	Claim(ctx context.Context, key, orderID string) (string, bool, error)
	Release(ctx context.Context, key string) error
}
