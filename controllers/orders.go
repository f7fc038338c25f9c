package controllers

import (
	"cmp"
	"slices"
	"strings"

	"checkout-pipeline/models"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// GroupOrders folds order lines into one summary per order. The earliest
// line of an order supplies its customer, created time and status. Orders
// come back newest first.
func GroupOrders(lines []models.OrderLine) []models.OrderSummary {
	groups := lo.GroupBy(lines, func(l models.OrderLine) string { return l.OrderID })

	summaries := lo.MapToSlice(groups, func(orderID string, group []models.OrderLine) models.OrderSummary {
		first := lo.MinBy(group, func(a, b models.OrderLine) bool { return a.CreatedAt.Before(b.CreatedAt) })

		return models.OrderSummary{
			OrderID:    orderID,
			Customer:   first.Customer,
			CreatedAt:  first.CreatedAt,
			Status:     first.Status,
			TotalItems: lo.SumBy(group, func(l models.OrderLine) int { return l.Quantity }),
			TotalAmount: lo.Reduce(group, func(sum decimal.Decimal, l models.OrderLine, _ int) decimal.Decimal {
				return sum.Add(l.TotalPrice)
			}, decimal.Zero),
		}
	})

	slices.SortFunc(summaries, func(a, b models.OrderSummary) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.OrderID, b.OrderID))
	})

	return summaries
}

// BuildOrderDetails assembles the details view of one order's lines. It
// reports false when there are no lines.
func BuildOrderDetails(lines []models.OrderLine) (models.OrderDetails, bool) {
	if len(lines) == 0 {
		return models.OrderDetails{}, false
	}

	items := slices.Clone(lines)
	slices.SortStableFunc(items, func(a, b models.OrderLine) int {
		return strings.Compare(a.ProductName, b.ProductName)
	})

	first := lo.MinBy(lines, func(a, b models.OrderLine) bool { return a.CreatedAt.Before(b.CreatedAt) })

	details := models.OrderDetails{
		OrderID:   first.OrderID,
		Customer:  first.Customer,
		Status:    first.Status,
		CreatedAt: first.CreatedAt,
		Items:     items,
		TotalAmount: lo.Reduce(items, func(sum decimal.Decimal, l models.OrderLine, _ int) decimal.Decimal {
			return sum.Add(l.TotalPrice)
		}, decimal.Zero),
	}

	// proof of payment is attached to a single line; surface the first one
	if proofLine, ok := lo.Find(items, func(l models.OrderLine) bool { return l.ContractFileName != nil }); ok {
		details.ContractFileName = proofLine.ContractFileName
		details.ContractOriginalName = proofLine.ContractOriginalFileName
		details.ContractContentType = proofLine.ContractContentType
	}

	return details, true
}
