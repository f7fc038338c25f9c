package consumers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"checkout-pipeline/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	resultAck        = "ack"
	resultRequeue    = "requeue"
	resultDeadLetter = "dead_letter"
)

var deliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_pipeline_deliveries_total",
		Help: "Queue deliveries by consumer and settlement",
	},
	[]string{"consumer", "result"},
)

// Handler handles one message body. Returning an error wrapping
// pipeline.ErrMalformedMessage dead-letters the message at once.
type Handler interface {
	Handle(ctx context.Context, body []byte) error
}

type HandlerFunc func(ctx context.Context, body []byte) error

func (f HandlerFunc) Handle(ctx context.Context, body []byte) error {
	return f(ctx, body)
}

type Config struct {
	Name    string
	Handler Handler
	Workers int
	Logger  logrus.FieldLogger
}

// Consumer drains a delivery channel with a fixed number of workers and
// settles every delivery by the handler's result.
type Consumer struct {
	name    string
	handler Handler
	workers int
	log     logrus.FieldLogger
}

func New(cfg Config) *Consumer {
	c := &Consumer{
		name:    cfg.Name,
		handler: cfg.Handler,
		workers: cfg.Workers,
		log:     cfg.Logger,
	}
	if c.workers < 1 {
		c.workers = 1
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.log = c.log.WithField("consumer", c.name)
	return c
}

// Run blocks until ctx is cancelled or deliveries is closed, then waits for
// the messages already being handled.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					// an in-flight message finishes even when shutdown starts
					c.handle(context.WithoutCancel(ctx), d)
				}
			}
		}()
	}

	c.log.WithField("workers", c.workers).Info("consumer started")
	wg.Wait()
	c.log.Info("consumer stopped")
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.log.WithFields(logrus.Fields{
		"message_id":  d.MessageId,
		"redelivered": d.Redelivered,
	})

	err := c.safeHandle(ctx, d.Body)

	var (
		result string
		ackErr error
	)
	switch {
	case err == nil:
		result = resultAck
		ackErr = d.Ack(false)
	case errors.Is(err, pipeline.ErrMalformedMessage):
		result = resultDeadLetter
		log.WithError(err).Error("malformed message, dead-lettering")
		ackErr = d.Nack(false, false)
	case d.Redelivered:
		result = resultDeadLetter
		log.WithError(err).Error("message failed again after redelivery, dead-lettering")
		ackErr = d.Nack(false, false)
	default:
		result = resultRequeue
		log.WithError(err).Warn("message failed, requeueing")
		ackErr = d.Nack(false, true)
	}

	deliveriesTotal.WithLabelValues(c.name, result).Inc()

	if ackErr != nil {
		log.WithError(ackErr).Error("failed to settle delivery")
	}
}

func (c *Consumer) safeHandle(ctx context.Context, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return c.handler.Handle(ctx, body)
}
