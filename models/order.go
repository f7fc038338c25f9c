package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutRequest is the payload carried on the checkout queue. OrderID is
// empty on first submission and immutable once assigned.
type CheckoutRequest struct {
	OrderID   string          `json:"order_id,omitempty"`
	Customer  string          `json:"customer"`
	Total     decimal.Decimal `json:"total"`
	Items     []CheckoutLine  `json:"items"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

type CheckoutLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is unit price times quantity. Client supplied totals are never
// trusted for a line.
func (l CheckoutLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// FinalizeSignal is carried on the finalize queue. It holds no line data;
// the finalize stage re-reads lines by order id.
type FinalizeSignal struct {
	OrderID string `json:"order_id"`
}

// CheckoutReceipt is returned to the caller of submit checkout.
type CheckoutReceipt struct {
	Accepted bool   `json:"accepted"`
	OrderID  string `json:"order_id"`
}

type OrderLine struct {
	LineID      string          `json:"line_id"`
	OrderID     string          `json:"order_id"`
	Customer    string          `json:"customer"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`

	ContractFileName         *string `json:"contract_file_name,omitempty"`
	ContractOriginalFileName *string `json:"contract_original_file_name,omitempty"`
	ContractContentType      *string `json:"contract_content_type,omitempty"`
}

// PaymentProof is the metadata of a proof-of-payment file stored out of
// band by the file store.
type PaymentProof struct {
	FileName         string `json:"file_name" binding:"required"`
	OriginalFileName string `json:"original_file_name"`
	ContentType      string `json:"content_type"`
}

// OrderLineFilter narrows a line listing. Empty fields do not filter.
type OrderLineFilter struct {
	Status   *OrderStatus
	Customer string

	// Limit caps the number of orders whose lines are returned, so a
	// listed order always comes with all of its matching lines.
	Limit int
}

// OrderSummary is one order in a grouped listing.
type OrderSummary struct {
	OrderID     string          `json:"order_id"`
	Customer    string          `json:"customer"`
	CreatedAt   time.Time       `json:"created_at"`
	Status      OrderStatus     `json:"status"`
	TotalItems  int             `json:"total_items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderDetails struct {
	OrderID     string          `json:"order_id"`
	Customer    string          `json:"customer"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Items       []OrderLine     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	ContractFileName     *string `json:"contract_file_name,omitempty"`
	ContractOriginalName *string `json:"contract_original_name,omitempty"`
	ContractContentType  *string `json:"contract_content_type,omitempty"`
}
