package ledger

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roomledger/backend/internal/apperr"
)

// maxCost is the first value that no longer fits NUMERIC(10,2).
var maxCost = decimal.New(1, 8)

// ParseCost parses a non-negative amount with at most two decimal places
// and at most eight integer digits.
func ParseCost(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, apperr.Validation("cost is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apperr.Validation("cost must be a number")
	}
	return validateCost(d)
}

func validateCost(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, apperr.Validation("cost must not be negative")
	}
	if !d.Equal(d.Truncate(2)) {
		return decimal.Zero, apperr.Validation("cost must have at most 2 decimal places")
	}
	if d.GreaterThanOrEqual(maxCost) {
		return decimal.Zero, apperr.Validation("cost must have at most 8 digits before the decimal point")
	}
	return d.Truncate(2), nil
}
