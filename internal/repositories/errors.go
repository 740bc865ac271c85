package repositories

import "errors"

// Common repository errors
var (
	ErrNotFound = errors.New("record not found")
)

// Sort orders accepted by TopProducts.
const (
	OrderByRevenue  = "revenue"
	OrderByQuantity = "quantity"
)
