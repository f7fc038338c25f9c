package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"checkout-pipeline/database"
	"checkout-pipeline/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

// startMySQL runs a disposable MySQL server and returns a migrated handle.
func startMySQL(ctx context.Context) (testcontainers.Container, *sql.DB, error) {
	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("retail"),
		tcmysql.WithUsername("shop"),
		tcmysql.WithPassword("shop"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql.Run: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "parseTime=true", "clientFoundRows=true", "loc=UTC")
	if err != nil {
		return container, nil, fmt.Errorf("container.ConnectionString: %w", err)
	}

	db, err := database.Open(ctx, connStr)
	if err != nil {
		return container, nil, err
	}

	return container, db, nil
}

func randomOrderLine(orderID string, index int) models.OrderLine {
	unitPrice := decimal.NewFromFloat(gofakeit.Price(1, 100)).Round(2)
	quantity := gofakeit.Number(1, 5)

	return models.OrderLine{
		LineID:      models.LineID(orderID, index),
		OrderID:     orderID,
		Customer:    gofakeit.Email(),
		ProductID:   gofakeit.UUID(),
		ProductName: gofakeit.ProductName(),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		Status:      models.StatusSubmitted,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func assertOrderLine(t *testing.T, expected, actual models.OrderLine) {
	t.Helper()

	opts := cmp.Options{
		cmp.Comparer(func(x, y decimal.Decimal) bool {
			return x.Equal(y)
		}),
		cmpopts.EquateApproxTime(time.Millisecond),
	}

	diff := cmp.Diff(expected, actual, opts)
	assert.Empty(t, diff)
}
