package models

import "fmt"

type OrderStatus string

// remember to extend ParseOrderStatus and OrderStatuses when adding a status
const (
	StatusSubmitted  OrderStatus = "Submitted"
	StatusProcessing OrderStatus = "Processing"
	StatusCompleted  OrderStatus = "Completed"
	StatusCancelled  OrderStatus = "Cancelled"
)

// legacyProcessed is what older finalize runs wrote for a finalized line.
const legacyProcessed = "Processed"

// ParseOrderStatus maps a stored or user supplied value onto the closed set
// of statuses.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusSubmitted, StatusProcessing, StatusCompleted, StatusCancelled:
		return OrderStatus(s), nil
	}

	if s == legacyProcessed {
		return StatusCompleted, nil
	}

	return "", fmt.Errorf("invalid order status %q", s)
}

func OrderStatuses() []OrderStatus {
	return []OrderStatus{StatusSubmitted, StatusProcessing, StatusCompleted, StatusCancelled}
}

// Terminal reports whether the status is an intended end state for
// reporting. Nothing stops an administrator from moving a line out of it.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusSubmitted, StatusProcessing:
		return false
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	return string(s)
}
