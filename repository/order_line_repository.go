package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"checkout-pipeline/models"
)

const orderLineColumns = `line_id, order_id, customer, product_id, product_name, quantity,
	unit_price, total_price, status, created_at, processed_at,
	contract_file_name, contract_original_file_name, contract_content_type`

type OrderLineRepository struct {
	db *sql.DB
}

func NewOrderLine(db *sql.DB) *OrderLineRepository {
	return &OrderLineRepository{db: db}
}

// UpsertLine writes a line keyed by its id. A repeated write of the same
// line leaves the stored row untouched, so a redelivered checkout cannot
// undo a finalize. A line id already stored for another customer or
// product returns ErrLineConflict.
func (r *OrderLineRepository) UpsertLine(ctx context.Context, line models.OrderLine) error {
	if line.LineID == "" {
		return errors.New("lineID is empty")
	}
	if line.OrderID == "" {
		return errors.New("orderID is empty")
	}

	const q = `
		INSERT INTO order_lines
			(line_id, order_id, customer, product_id, product_name, quantity,
			 unit_price, total_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE line_id = line_id`

	_, err := r.db.ExecContext(ctx, q,
		line.LineID,
		line.OrderID,
		line.Customer,
		line.ProductID,
		line.ProductName,
		line.Quantity,
		line.UnitPrice,
		line.TotalPrice,
		string(line.Status),
		line.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsertLine[%s]: %w", line.LineID, err)
	}

	var customer, productID string
	err = r.db.QueryRowContext(ctx,
		`SELECT customer, product_id FROM order_lines WHERE line_id = ?`, line.LineID).
		Scan(&customer, &productID)
	if err != nil {
		return fmt.Errorf("upsertLine[%s]: %w", line.LineID, err)
	}
	if customer != line.Customer || productID != line.ProductID {
		return fmt.Errorf("upsertLine[%s]: %w", line.LineID, ErrLineConflict)
	}

	return nil
}

func (r *OrderLineRepository) GetLine(ctx context.Context, lineID string) (models.OrderLine, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderLineColumns+` FROM order_lines WHERE line_id = ?`, lineID)

	line, err := scanOrderLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OrderLine{}, fmt.Errorf("getLine: %w", ErrNotFound)
		}
		return models.OrderLine{}, fmt.Errorf("getLine: %w", err)
	}

	return line, nil
}

// ListByOrder returns every line of an order ordered by product name.
func (r *OrderLineRepository) ListByOrder(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderLineColumns+` FROM order_lines WHERE order_id = ? ORDER BY product_name, line_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listByOrder: %w", err)
	}

	lines, err := scanOrderLines(rows)
	if err != nil {
		return nil, fmt.Errorf("listByOrder: %w", err)
	}

	return lines, nil
}

// ListLines returns lines newest first, narrowed by the filter. The limit
// applies to orders: the lines of the newest filter.Limit orders are
// returned in full.
func (r *OrderLineRepository) ListLines(ctx context.Context, filter models.OrderLineFilter) ([]models.OrderLine, error) {
	var (
		where []string
		args  []any
	)

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Customer != "" {
		where = append(where, "customer = ?")
		args = append(args, filter.Customer)
	}

	cond := ""
	if len(where) > 0 {
		cond = ` WHERE ` + strings.Join(where, " AND ")
	}

	q := `SELECT ` + orderLineColumns + ` FROM order_lines`
	if filter.Limit > 0 {
		q += ` JOIN (
			SELECT order_id FROM order_lines` + cond + `
			GROUP BY order_id
			ORDER BY MIN(created_at) DESC, order_id
			LIMIT ?) newest USING (order_id)`
		// placeholders of the subquery come before the outer ones
		args = append(append(slices.Clone(args), filter.Limit), args...)
	}
	q += cond + ` ORDER BY created_at DESC, order_id, line_id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listLines: %w", err)
	}

	lines, err := scanOrderLines(rows)
	if err != nil {
		return nil, fmt.Errorf("listLines: %w", err)
	}

	return lines, nil
}

// UpdateStatus sets the status of a single line. Any status may follow any
// other; transition policy belongs to the caller.
func (r *OrderLineRepository) UpdateStatus(ctx context.Context, lineID string, status models.OrderStatus) error {
	if lineID == "" {
		return errors.New("lineID is empty")
	}
	if _, err := models.ParseOrderStatus(string(status)); err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE order_lines SET status = ? WHERE line_id = ?`, string(status), lineID)
	if err != nil {
		return fmt.Errorf("updateStatus: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updateStatus: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updateStatus: %w", ErrNotFound)
	}

	return nil
}

// UpdateOrderStatus sets the status of every line of an order and returns
// how many lines matched.
func (r *OrderLineRepository) UpdateOrderStatus(ctx context.Context, orderID string, status models.OrderStatus) (int64, error) {
	if orderID == "" {
		return 0, errors.New("orderID is empty")
	}
	if _, err := models.ParseOrderStatus(string(status)); err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, `UPDATE order_lines SET status = ? WHERE order_id = ?`, string(status), orderID)
	if err != nil {
		return 0, fmt.Errorf("updateOrderStatus: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("updateOrderStatus: %w", err)
	}

	return n, nil
}

// MarkOrderCompleted finalizes every line of an order. Zero lines is not an
// error.
func (r *OrderLineRepository) MarkOrderCompleted(ctx context.Context, orderID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE order_lines SET status = ?, processed_at = ? WHERE order_id = ?`,
		string(models.StatusCompleted), at.UTC(), orderID)
	if err != nil {
		return 0, fmt.Errorf("markOrderCompleted: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("markOrderCompleted: %w", err)
	}

	return n, nil
}

func (r *OrderLineRepository) AttachPaymentProof(ctx context.Context, lineID string, proof models.PaymentProof) error {
	if strings.TrimSpace(proof.FileName) == "" {
		return errors.New("file name is empty")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE order_lines
		SET contract_file_name = ?, contract_original_file_name = ?, contract_content_type = ?
		WHERE line_id = ?`,
		proof.FileName, nullableString(proof.OriginalFileName), nullableString(proof.ContentType), lineID)
	if err != nil {
		return fmt.Errorf("attachPaymentProof: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attachPaymentProof: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("attachPaymentProof: %w", ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrderLine(row rowScanner) (models.OrderLine, error) {
	var (
		line   models.OrderLine
		status string
	)

	err := row.Scan(
		&line.LineID,
		&line.OrderID,
		&line.Customer,
		&line.ProductID,
		&line.ProductName,
		&line.Quantity,
		&line.UnitPrice,
		&line.TotalPrice,
		&status,
		&line.CreatedAt,
		&line.ProcessedAt,
		&line.ContractFileName,
		&line.ContractOriginalFileName,
		&line.ContractContentType,
	)
	if err != nil {
		return line, err
	}

	line.Status, err = models.ParseOrderStatus(status)
	if err != nil {
		return line, fmt.Errorf("line[%s]: %w", line.LineID, err)
	}

	return line, nil
}

func scanOrderLines(rows *sql.Rows) ([]models.OrderLine, error) {
	defer rows.Close()

	var lines []models.OrderLine
	for rows.Next() {
		line, err := scanOrderLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
