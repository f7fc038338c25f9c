package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"checkout-pipeline/config"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrNacked is returned when the broker refused a published message.
var ErrNacked = errors.New("message nacked by broker")

type RabbitMQ struct {
	Conn *amqp.Connection
	Cfg  *config.Config

	// the publishing channel is in confirm mode and shared, so publishes
	// are serialized
	mu      sync.Mutex
	channel *amqp.Channel

	log logrus.FieldLogger
}

func NewRabbitMQ(cfg *config.Config, logger logrus.FieldLogger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("amqp.Dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("conn.Channel: %w", err), conn.Close())
	}

	if err := ch.Confirm(false); err != nil {
		return nil, errors.Join(fmt.Errorf("ch.Confirm: %w", err), conn.Close())
	}

	return &RabbitMQ{
		Conn:    conn,
		Cfg:     cfg,
		channel: ch,
		log:     logger.WithField("component", "rabbitmq"),
	}, nil
}

// DeadLetterExchange names the exchange rejected messages of queue go to.
func DeadLetterExchange(queue string) string {
	return queue + ".dlx"
}

// DeadLetterQueue names the queue holding rejected messages of queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dead-letter"
}

// SetupQueues declares the checkout and finalize queues, each with its
// own dead-letter exchange and queue. Declarations are idempotent.
func (r *RabbitMQ) SetupQueues() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, queue := range []string{r.Cfg.CheckoutQueue, r.Cfg.FinalizeQueue} {
		if err := declareWithDeadLetter(r.channel, queue); err != nil {
			return fmt.Errorf("declare %s: %w", queue, err)
		}
	}
	return nil
}

func declareWithDeadLetter(ch *amqp.Channel, queue string) error {
	dlx := DeadLetterExchange(queue)
	dlq := DeadLetterQueue(queue)

	if err := ch.ExchangeDeclare(
		dlx,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		dlq,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-queue-type": "classic",
		},
	); err != nil {
		return err
	}

	if err := ch.QueueBind(dlq, queue, dlx, false, nil); err != nil {
		return err
	}

	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": queue,
		},
	)
	return err
}

// Publish sends body to queue through the default exchange and waits for
// the broker's confirm, bounded by the configured publish timeout.
func (r *RabbitMQ) Publish(ctx context.Context, queue, msgType string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.Cfg.PublishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Type:         msgType,
		Body:         body,
	}

	r.mu.Lock()
	confirm, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		msg,
	)
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm from %s: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("publish to %s: %w", queue, ErrNacked)
	}

	r.log.WithFields(logrus.Fields{
		"queue":      queue,
		"type":       msgType,
		"message_id": msg.MessageId,
	}).Debug("message published")

	return nil
}

// Consume opens a dedicated channel with the given prefetch and starts a
// manual-ack consumer on queue. Closing the returned channel stops the
// deliveries.
func (r *RabbitMQ) Consume(queue, tag string, prefetch int) (<-chan amqp.Delivery, *amqp.Channel, error) {
	ch, err := r.Conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("conn.Channel: %w", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("ch.Qos: %w", err), ch.Close())
	}

	deliveries, err := ch.Consume(
		queue,
		tag,   // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("ch.Consume %s: %w", queue, err), ch.Close())
	}

	return deliveries, ch, nil
}

// QueueDepth returns the number of ready messages in queue. It inspects on
// a short-lived channel, since a missing queue closes the channel it was
// asked on.
func (r *RabbitMQ) QueueDepth(queue string) (int, error) {
	ch, err := r.Conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("conn.Channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(queue, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("ch.QueueDeclarePassive %s: %w", queue, err)
	}

	return q.Messages, nil
}

// Healthy reports whether the connection is still open.
func (r *RabbitMQ) Healthy() bool {
	return r.Conn != nil && !r.Conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	var errs []error

	r.mu.Lock()
	if r.channel != nil {
		if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("channel.Close: %w", err))
		}
	}
	r.mu.Unlock()

	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("conn.Close: %w", err))
		}
	}

	return errors.Join(errs...)
}
