package pos

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"possale/internal/models"
	"possale/internal/validation"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	charger = models.Product{ID: 1, Name: "USB-C Charger"}
	mouse   = models.Product{ID: 2, Name: "Wireless Mouse"}
)

func batch(id, productID int64, remaining int, price string) models.StockBatch {
	return models.StockBatch{
		ID:                id,
		ProductID:         productID,
		IntakeDate:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UnitPrice:         dec(price),
		WarrantyMonths:    12,
		RemainingQuantity: remaining,
		TotalQuantity:     remaining,
	}
}

func mustApply(t *testing.T, c Cart, ev CartEvent) Cart {
	t.Helper()
	next, err := c.Apply(ev)
	if err != nil {
		t.Fatalf("Apply(%T) failed: %v", ev, err)
	}
	return next
}

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		price, discount, want string
	}{
		{"100", "0", "100"},
		{"100", "100", "0"},
		{"29.99", "10", "26.991"},
		{"10", "33.3333", "6.66667"},
	}
	for _, tt := range tests {
		got := DiscountedPrice(dec(tt.price), dec(tt.discount))
		if !got.Equal(dec(tt.want)) {
			t.Errorf("DiscountedPrice(%s, %s) = %s, want %s", tt.price, tt.discount, got, tt.want)
		}
	}
}

func TestDiscountedPriceBounds(t *testing.T) {
	price := dec("49.95")
	for d := 0; d <= 100; d += 5 {
		got := DiscountedPrice(price, decimal.NewFromInt(int64(d)))
		if got.IsNegative() || got.GreaterThan(price) {
			t.Errorf("discount %d%%: %s outside [0, %s]", d, got, price)
		}
	}
}

func TestClampDiscount(t *testing.T) {
	tests := []struct{ in, want string }{
		{"-5", "0"},
		{"0", "0"},
		{"12.5", "12.5"},
		{"100", "100"},
		{"150", "100"},
	}
	for _, tt := range tests {
		if got := ClampDiscount(dec(tt.in)); !got.Equal(dec(tt.want)) {
			t.Errorf("ClampDiscount(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCartAddLine(t *testing.T) {
	c := mustApply(t, NewCart(), AddLine{
		Product:  charger,
		Batch:    batch(10, 1, 5, "29.99"),
		Quantity: 2,
		Discount: dec("10"),
		Serials:  []string{" SN-1 ", "SN-2"},
	})
	if c.Len() != 1 {
		t.Fatalf("Expected 1 line, got %d", c.Len())
	}
	l := c.Lines()[0]
	if l.ID == "" {
		t.Error("Expected generated line id")
	}
	if l.ProductName != "USB-C Charger" || l.BatchID != 10 || l.WarrantyMonths != 12 {
		t.Errorf("Unexpected line snapshot: %+v", l)
	}
	if l.Serials[0] != "SN-1" {
		t.Errorf("Expected trimmed serial, got %q", l.Serials[0])
	}
	if !l.Subtotal().Equal(dec("53.982")) {
		t.Errorf("Expected subtotal 53.982, got %s", l.Subtotal())
	}
}

func TestCartAddLineClampsDiscount(t *testing.T) {
	c := mustApply(t, NewCart(), AddLine{Product: charger, Batch: batch(10, 1, 5, "20"), Quantity: 1, Discount: dec("250")})
	if !c.Subtotal().IsZero() {
		t.Errorf("Expected 100%% discount to give zero subtotal, got %s", c.Subtotal())
	}
}

func TestCartAddLineRejections(t *testing.T) {
	base := mustApply(t, NewCart(), AddLine{LineID: "a", Product: charger, Batch: batch(10, 1, 3, "10"), Quantity: 2})

	tests := []struct {
		name  string
		ev    AddLine
		field string
	}{
		{"zero quantity", AddLine{Product: charger, Batch: batch(11, 1, 5, "10"), Quantity: 0}, "quantity"},
		{"over remaining", AddLine{Product: mouse, Batch: batch(20, 2, 1, "10"), Quantity: 2}, "quantity"},
		{"cumulative over remaining", AddLine{Product: charger, Batch: batch(10, 1, 3, "10"), Quantity: 2}, "quantity"},
		{"wrong product", AddLine{Product: mouse, Batch: batch(10, 1, 3, "10"), Quantity: 1}, "batch_id"},
		{"duplicate id", AddLine{LineID: "a", Product: mouse, Batch: batch(20, 2, 5, "10"), Quantity: 1}, "line_id"},
		{"too many serials", AddLine{Product: mouse, Batch: batch(20, 2, 5, "10"), Quantity: 1, Serials: []string{"x", "y"}}, "serials"},
		{"long serial", AddLine{Product: mouse, Batch: batch(20, 2, 5, "10"), Quantity: 1, Serials: []string{strings.Repeat("s", 101)}}, "serials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := base.Apply(tt.ev)
			if err == nil {
				t.Fatal("Expected error")
			}
			var ve *validation.ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range ve.Errors {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error on %q, got %v", tt.field, ve.Errors)
			}
			if next.Len() != base.Len() || !next.Subtotal().Equal(base.Subtotal()) {
				t.Error("Rejected event changed the cart")
			}
		})
	}
}

func TestCartSubtotalIsSumOfLines(t *testing.T) {
	c := NewCart()
	c = mustApply(t, c, AddLine{Product: charger, Batch: batch(10, 1, 5, "29.99"), Quantity: 3, Discount: dec("15")})
	c = mustApply(t, c, AddLine{Product: mouse, Batch: batch(20, 2, 5, "14.50"), Quantity: 1})
	c = mustApply(t, c, AddLine{Product: charger, Batch: batch(11, 1, 2, "31.99"), Quantity: 2, Discount: dec("2.5")})

	sum := decimal.Zero
	for _, l := range c.Lines() {
		sum = sum.Add(l.Subtotal())
	}
	if !c.Subtotal().Equal(sum) {
		t.Errorf("Cart subtotal %s != sum of lines %s", c.Subtotal(), sum)
	}
}

func TestCartRemoveLineNeverIncreasesSubtotal(t *testing.T) {
	c := NewCart()
	c = mustApply(t, c, AddLine{LineID: "a", Product: charger, Batch: batch(10, 1, 5, "29.99"), Quantity: 2})
	c = mustApply(t, c, AddLine{LineID: "b", Product: mouse, Batch: batch(20, 2, 5, "0"), Quantity: 1})
	c = mustApply(t, c, AddLine{LineID: "c", Product: mouse, Batch: batch(21, 2, 5, "14.50"), Quantity: 1, Discount: dec("50")})

	for _, id := range []string{"b", "a", "c"} {
		before := c.Subtotal()
		c = mustApply(t, c, RemoveLine{LineID: id})
		if c.Subtotal().GreaterThan(before) {
			t.Errorf("Removing %s increased subtotal from %s to %s", id, before, c.Subtotal())
		}
	}
	if !c.IsEmpty() {
		t.Errorf("Expected empty cart, got %d lines", c.Len())
	}
}

func TestCartRemoveUnknownLine(t *testing.T) {
	c := mustApply(t, NewCart(), AddLine{LineID: "a", Product: charger, Batch: batch(10, 1, 5, "10"), Quantity: 1})
	next, err := c.Apply(RemoveLine{LineID: "zzz"})
	if !validation.IsValidation(err) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if next.Len() != 1 {
		t.Error("Failed removal changed the cart")
	}
}

func TestCartImmutable(t *testing.T) {
	c1 := mustApply(t, NewCart(), AddLine{LineID: "a", Product: charger, Batch: batch(10, 1, 5, "10"), Quantity: 1})
	c2 := mustApply(t, c1, AddLine{LineID: "b", Product: mouse, Batch: batch(20, 2, 5, "5"), Quantity: 1})
	c3 := mustApply(t, c2, ClearCart{})

	if c1.Len() != 1 || c2.Len() != 2 || c3.Len() != 0 {
		t.Errorf("Expected lengths 1/2/0, got %d/%d/%d", c1.Len(), c2.Len(), c3.Len())
	}
	lines := c2.Lines()
	lines[0].Quantity = 99
	if c2.Lines()[0].Quantity != 1 {
		t.Error("Lines() exposed internal state")
	}
}

func TestCartBatchIDs(t *testing.T) {
	c := NewCart()
	c = mustApply(t, c, AddLine{Product: charger, Batch: batch(10, 1, 5, "10"), Quantity: 1})
	c = mustApply(t, c, AddLine{Product: charger, Batch: batch(10, 1, 5, "10"), Quantity: 1})
	c = mustApply(t, c, AddLine{Product: mouse, Batch: batch(20, 2, 5, "10"), Quantity: 1})
	ids := c.BatchIDs()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Errorf("Expected [10 20], got %v", ids)
	}
}

func TestCartTotals(t *testing.T) {
	c := NewCart()
	c = mustApply(t, c, AddLine{Product: charger, Batch: batch(10, 1, 5, "29.99"), Quantity: 2, Discount: dec("10")})
	c = mustApply(t, c, AddLine{Product: mouse, Batch: batch(20, 2, 5, "14.50"), Quantity: 1})

	tot := CartTotals(c)
	if !tot.Subtotal.Equal(dec("74.48")) {
		t.Errorf("Expected subtotal 74.48, got %s", tot.Subtotal)
	}
	// 53.982 + 14.50 = 68.482 -> 68.48
	if !tot.GrandTotal.Equal(dec("68.48")) {
		t.Errorf("Expected grand total 68.48, got %s", tot.GrandTotal)
	}
	if !tot.Subtotal.Sub(tot.DiscountTotal).Equal(tot.GrandTotal) {
		t.Errorf("Subtotal - discount != grand total: %s - %s != %s", tot.Subtotal, tot.DiscountTotal, tot.GrandTotal)
	}
}
