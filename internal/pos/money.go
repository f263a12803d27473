package pos

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CurrencyPlaces is the number of decimal places sale totals are rounded to.
const CurrencyPlaces = 2

// ClampDiscount limits a discount percentage to [0,100].
func ClampDiscount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(hundred) {
		return hundred
	}
	return d
}

// DiscountedPrice returns price × (1 − discount/100). The result is exact.
func DiscountedPrice(price, discount decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(discount)).Shift(-2)
}

// LineSubtotal is quantity × DiscountedPrice(price, discount).
func LineSubtotal(quantity int, price, discount decimal.Decimal) decimal.Decimal {
	return DiscountedPrice(price, discount).Mul(decimal.NewFromInt(int64(quantity)))
}
