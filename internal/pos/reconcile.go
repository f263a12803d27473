package pos

import "github.com/shopspring/decimal"

// Reconciliation is the payment view of a draft: what is owed, what was
// handed over and the change to give back.
type Reconciliation struct {
	Total     decimal.Decimal `json:"total"`
	Tendered  decimal.Decimal `json:"tendered"`
	ChangeDue decimal.Decimal `json:"change_due"`
	// Payable is false while the tendered amount is short of the total.
	// That is a valid draft state but blocks commit.
	Payable bool `json:"payable"`
}

// Reconcile computes change due as max(0, tendered − total).
func Reconcile(total, tendered decimal.Decimal) Reconciliation {
	change := tendered.Sub(total)
	if change.IsNegative() {
		change = decimal.Zero
	}
	return Reconciliation{
		Total:     total,
		Tendered:  tendered,
		ChangeDue: change,
		Payable:   tendered.GreaterThanOrEqual(total),
	}
}

// Totals splits a cart into the money columns of a sale.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// CartTotals returns gross subtotal, discount and grand total. The grand
// total is rounded to currency places and the discount absorbs the rounding
// so that Subtotal − DiscountTotal = GrandTotal always holds.
func CartTotals(c Cart) Totals {
	gross := decimal.Zero
	for _, l := range c.lines {
		gross = gross.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	grand := c.Subtotal().Round(CurrencyPlaces)
	return Totals{
		Subtotal:      gross,
		DiscountTotal: gross.Sub(grand),
		GrandTotal:    grand,
	}
}
