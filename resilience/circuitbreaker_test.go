package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"checkout-pipeline/models"
	"checkout-pipeline/repository"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdjuster struct {
	err   error
	calls int
}

func (s *stubAdjuster) AdjustStock(_ context.Context, _ models.StockDeduction) (models.StockAdjustment, error) {
	s.calls++
	if s.err != nil {
		return models.StockAdjustment{}, s.err
	}
	return models.StockAdjustment{Applied: true, Remaining: 3}, nil
}

func newTestInventory(t *testing.T, next InventoryAdjuster) *Inventory {
	t.Helper()
	logger, _ := logtest.NewNullLogger()

	return NewInventory(next, BreakerSettings{
		Name:         t.Name(),
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
		Logger:       logger,
	})
}

func TestInventoryPassesThrough(t *testing.T) {
	stub := &stubAdjuster{}
	inv := newTestInventory(t, stub)

	adj, err := inv.AdjustStock(t.Context(), models.StockDeduction{LineID: "l1", ProductID: "p1", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, models.StockAdjustment{Applied: true, Remaining: 3}, adj)
	assert.Equal(t, 1, stub.calls)
}

func TestInventoryTripsOnStoreFailures(t *testing.T) {
	stub := &stubAdjuster{err: errors.New("i/o timeout")}
	inv := newTestInventory(t, stub)
	ctx := t.Context()

	for range 3 {
		_, err := inv.AdjustStock(ctx, models.StockDeduction{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInventoryUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, inv.State())

	_, err := inv.AdjustStock(ctx, models.StockDeduction{})
	require.ErrorIs(t, err, ErrInventoryUnavailable)
	assert.Equal(t, 3, stub.calls, "open breaker must not reach the store")
}

func TestInventoryIgnoresBusinessErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "unknown product", err: fmt.Errorf("adjustStock[p1]: %w", repository.ErrNotFound)},
		{name: "lost race", err: fmt.Errorf("adjustStock[p1]: %w", repository.ErrStockConflict)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAdjuster{err: tt.err}
			inv := newTestInventory(t, stub)

			for range 5 {
				_, err := inv.AdjustStock(t.Context(), models.StockDeduction{})
				require.ErrorIs(t, err, tt.err)
			}
			assert.Equal(t, gobreaker.StateClosed, inv.State())
			assert.Equal(t, 5, stub.calls)
		})
	}
}
