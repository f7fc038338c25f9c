package models

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// lineNamespace scopes deterministic line ids. Changing it changes every
// line id derived from now on, so it is fixed.
var lineNamespace = uuid.MustParse("6f1c8d3e-2b7a-4e59-9a0d-3c5b7e1f4a28")

// NewOrderID returns a fresh order id in compact hex form.
func NewOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// LineID derives the id of the index-th line of an order. The same order
// and index always give the same id, so a redelivered checkout rewrites
// the same rows instead of adding new ones.
func LineID(orderID string, index int) string {
	return uuid.NewSHA1(lineNamespace, []byte(orderID+":"+strconv.Itoa(index))).String()
}
