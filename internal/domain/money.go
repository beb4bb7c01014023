package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

const MoneyScale = 2

// Column bounds: price NUMERIC(12,2), total NUMERIC(14,2), stock and quantity INTEGER.
const MaxUnits = math.MaxInt32

var (
	MaxPrice      = decimal.RequireFromString("9999999999.99")
	MaxOrderTotal = decimal.RequireFromString("999999999999.99")
)

// RoundMoney rounds half away from zero to cents.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ValidPrice reports whether an already rounded price fits the price column.
func ValidPrice(price decimal.Decimal) bool {
	return price.IsPositive() && price.LessThanOrEqual(MaxPrice)
}
