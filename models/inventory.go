package models

type InventoryRecord struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Version   int64  `json:"version"`
}

// StockPatch is a merge update: nil fields are left untouched.
type StockPatch struct {
	Stock *int `json:"stock"`
}

// StockDeduction is one line's claim on a product's stock. LineID makes the
// deduction idempotent.
type StockDeduction struct {
	LineID    string
	OrderID   string
	ProductID string
	Quantity  int
}

// ClampedStock returns stock minus quantity, floored at zero.
func ClampedStock(stock, quantity int) int {
	if quantity >= stock {
		return 0
	}
	return stock - quantity
}

// StockAdjustment reports the outcome of a deduction. Applied is false
// when the same line was already deducted earlier.
type StockAdjustment struct {
	Applied   bool
	Remaining int
}
