package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-pipeline/models"
)

type InventoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewInventory(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db, now: time.Now}
}

func (r *InventoryRepository) GetStock(ctx context.Context, productID string) (models.InventoryRecord, error) {
	rec, err := getStock(ctx, r.db, productID)
	if err != nil {
		return rec, fmt.Errorf("getStock: %w", err)
	}
	return rec, nil
}

// SetStock applies a merge update and creates the record when missing.
// A patch without fields only reads.
func (r *InventoryRepository) SetStock(ctx context.Context, productID string, patch models.StockPatch) (models.InventoryRecord, error) {
	if productID == "" {
		return models.InventoryRecord{}, errors.New("productID is empty")
	}
	if patch.Stock == nil {
		return r.GetStock(ctx, productID)
	}
	if *patch.Stock < 0 {
		return models.InventoryRecord{}, errors.New("stock must not be negative")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, stock, version) VALUES (?, ?, 1)
		ON DUPLICATE KEY UPDATE stock = VALUES(stock), version = version + 1`,
		productID, *patch.Stock)
	if err != nil {
		return models.InventoryRecord{}, fmt.Errorf("setStock: %w", err)
	}

	return r.GetStock(ctx, productID)
}

const adjustAttempts = 3

// AdjustStock is the only read-modify-write of stock. It records the
// deduction in the ledger keyed by line id and applies a clamped
// subtraction to the locked row, guarded by the row version, all in one
// transaction.
//
// A line that was already deducted is reported with Applied=false and the
// stock is not touched. A rolled back attempt leaves no ledger row, so
// version mismatches and deadlocks are retried; ErrStockConflict is
// returned once the attempts run out.
func (r *InventoryRepository) AdjustStock(ctx context.Context, d models.StockDeduction) (models.StockAdjustment, error) {
	if d.LineID == "" {
		return models.StockAdjustment{}, errors.New("lineID is empty")
	}
	if d.Quantity <= 0 {
		return models.StockAdjustment{}, fmt.Errorf("quantity %d must be positive", d.Quantity)
	}

	var (
		adj models.StockAdjustment
		err error
	)
	for range adjustAttempts {
		adj, err = r.adjustOnce(ctx, d)
		if !errors.Is(err, ErrStockConflict) && !isDeadlock(err) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if isDeadlock(err) {
		err = errors.Join(ErrStockConflict, err)
	}
	if err != nil {
		return models.StockAdjustment{}, fmt.Errorf("adjustStock[%s]: %w", d.ProductID, err)
	}

	return adj, nil
}

func (r *InventoryRepository) adjustOnce(ctx context.Context, d models.StockDeduction) (models.StockAdjustment, error) {
	return withTx(ctx, r.db, func(tx *sql.Tx) (models.StockAdjustment, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_deductions (line_id, order_id, product_id, quantity, applied_at)
			VALUES (?, ?, ?, ?, ?)`,
			d.LineID, d.OrderID, d.ProductID, d.Quantity, r.now().UTC())
		if err != nil {
			if isDuplicateEntry(err) {
				rec, err := getStock(ctx, tx, d.ProductID)
				if err != nil {
					return models.StockAdjustment{}, err
				}
				return models.StockAdjustment{Applied: false, Remaining: rec.Stock}, nil
			}
			return models.StockAdjustment{}, fmt.Errorf("insert deduction: %w", err)
		}

		rec, err := lockStock(ctx, tx, d.ProductID)
		if err != nil {
			return models.StockAdjustment{}, err
		}

		remaining := models.ClampedStock(rec.Stock, d.Quantity)

		res, err := tx.ExecContext(ctx,
			`UPDATE inventory SET stock = ?, version = version + 1 WHERE product_id = ? AND version = ?`,
			remaining, d.ProductID, rec.Version)
		if err != nil {
			return models.StockAdjustment{}, fmt.Errorf("update stock: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return models.StockAdjustment{}, fmt.Errorf("update stock: %w", err)
		}
		if n == 0 {
			return models.StockAdjustment{}, ErrStockConflict
		}

		return models.StockAdjustment{Applied: true, Remaining: remaining}, nil
	})
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getStock(ctx context.Context, q queryRower, productID string) (models.InventoryRecord, error) {
	return scanStock(q.QueryRowContext(ctx, `SELECT stock, version FROM inventory WHERE product_id = ?`, productID), productID)
}

// lockStock reads the record and holds its row lock until tx ends.
func lockStock(ctx context.Context, tx *sql.Tx, productID string) (models.InventoryRecord, error) {
	return scanStock(tx.QueryRowContext(ctx, `SELECT stock, version FROM inventory WHERE product_id = ? FOR UPDATE`, productID), productID)
}

func scanStock(row *sql.Row, productID string) (models.InventoryRecord, error) {
	rec := models.InventoryRecord{ProductID: productID}

	err := row.Scan(&rec.Stock, &rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, err
	}

	return rec, nil
}
