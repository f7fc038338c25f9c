package consumers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var deadLetters = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "checkout_pipeline_dead_letters",
		Help: "Messages waiting in a dead-letter queue",
	},
	[]string{"queue"},
)

// QueueDepther reports how many messages are ready in a queue without
// consuming them.
type QueueDepther interface {
	QueueDepth(queue string) (int, error)
}

// WatchDeadLetters polls the depth of a dead-letter queue every interval
// until ctx is cancelled. Dead letters stay in the queue for inspection
// and replay; the watcher only exports the depth and logs when it grows.
func WatchDeadLetters(ctx context.Context, queue string, q QueueDepther, interval time.Duration, logger logrus.FieldLogger) {
	log := logger.WithField("queue", queue)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := 0
	for {
		depth, err := q.QueueDepth(queue)
		switch {
		case err != nil:
			log.WithError(err).Warn("failed to inspect dead-letter queue")
		default:
			deadLetters.WithLabelValues(queue).Set(float64(depth))
			if depth > last {
				log.WithFields(logrus.Fields{
					"depth": depth,
					"new":   depth - last,
				}).Error("dead letters waiting")
			}
			last = depth
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
