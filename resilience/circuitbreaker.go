package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-pipeline/models"
	"checkout-pipeline/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	// breakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkout_pipeline_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)

	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_pipeline_circuit_breaker_rejections_total",
			Help: "Calls rejected without reaching the protected store",
		},
		[]string{"circuit_name"},
	)
)

// ErrInventoryUnavailable is returned while the breaker rejects calls.
var ErrInventoryUnavailable = errors.New("inventory store unavailable")

type InventoryAdjuster interface {
	AdjustStock(ctx context.Context, d models.StockDeduction) (models.StockAdjustment, error)
}

type BreakerSettings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
	Logger       logrus.FieldLogger
}

// Inventory guards stock adjustments with a circuit breaker so a struggling
// store fails fast instead of stalling every checkout.
type Inventory struct {
	next InventoryAdjuster
	cb   *gobreaker.CircuitBreaker
	name string
}

func NewInventory(next InventoryAdjuster, s BreakerSettings) *Inventory {
	log := s.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateValue(to))

			log.WithFields(logrus.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
		// business outcomes are answers from a healthy store
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, repository.ErrNotFound) ||
				errors.Is(err, repository.ErrStockConflict)
		},
	})

	breakerState.WithLabelValues(s.Name).Set(stateValue(gobreaker.StateClosed))

	return &Inventory{next: next, cb: cb, name: s.Name}
}

func (i *Inventory) AdjustStock(ctx context.Context, d models.StockDeduction) (models.StockAdjustment, error) {
	res, err := i.cb.Execute(func() (interface{}, error) {
		return i.next.AdjustStock(ctx, d)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			breakerRejections.WithLabelValues(i.name).Inc()
			return models.StockAdjustment{}, fmt.Errorf("%w: circuit %s: %w", ErrInventoryUnavailable, i.name, err)
		}
		return models.StockAdjustment{}, err
	}

	return res.(models.StockAdjustment), nil
}

func (i *Inventory) State() gobreaker.State {
	return i.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	case gobreaker.StateClosed:
		return 0
	default:
		return -1
	}
}
