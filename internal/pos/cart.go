package pos

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"possale/internal/models"
	"possale/internal/validation"
)

// CartLine is one pending line of a draft sale. It draws from exactly one
// stock batch.
type CartLine struct {
	ID             string          `json:"id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name"`
	BatchID        int64           `json:"batch_id"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	WarrantyMonths int             `json:"warranty_months"`
	Quantity       int             `json:"quantity"`
	Discount       decimal.Decimal `json:"discount"`
	Serials        []string        `json:"serials"`
}

// Subtotal is quantity × unit price × (1 − discount/100).
func (l CartLine) Subtotal() decimal.Decimal {
	return LineSubtotal(l.Quantity, l.UnitPrice, l.Discount)
}

// Cart is an immutable draft sale. Every change goes through Apply, which
// returns a new Cart and leaves the receiver untouched.
type Cart struct {
	lines []CartLine
}

// NewCart returns an empty draft.
func NewCart() Cart { return Cart{} }

// Lines returns a copy of the current lines in insertion order.
func (c Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c Cart) Len() int { return len(c.lines) }

func (c Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Subtotal is the sum of the line subtotals.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// BatchIDs lists the distinct batches the cart draws from.
func (c Cart) BatchIDs() []int64 {
	seen := make(map[int64]bool, len(c.lines))
	var ids []int64
	for _, l := range c.lines {
		if !seen[l.BatchID] {
			seen[l.BatchID] = true
			ids = append(ids, l.BatchID)
		}
	}
	return ids
}

// CartEvent is a message accepted by Cart.Apply.
type CartEvent interface {
	applyTo(c Cart) (Cart, error)
}

// AddLine adds product drawn from batch. Batch is the allocator snapshot the
// operator picked from; its RemainingQuantity bounds Quantity.
type AddLine struct {
	LineID   string
	Product  models.Product
	Batch    models.StockBatch
	Quantity int
	Discount decimal.Decimal
	Serials  []string
}

type RemoveLine struct {
	LineID string
}

type ClearCart struct{}

// Apply folds ev into the cart. On error the returned cart equals c.
func (c Cart) Apply(ev CartEvent) (Cart, error) {
	next, err := ev.applyTo(c)
	if err != nil {
		return c, err
	}
	return next, nil
}

func (ev AddLine) applyTo(c Cart) (Cart, error) {
	ve := &validation.ValidationErrors{}
	if ev.Batch.ProductID != ev.Product.ID {
		ve.Add("batch_id", fmt.Sprintf("batch %d does not belong to product %d", ev.Batch.ID, ev.Product.ID))
	}
	if ev.Quantity < 1 {
		ve.Add("quantity", "must be at least 1")
	}
	alreadyDrawn := 0
	for _, l := range c.lines {
		if l.BatchID == ev.Batch.ID {
			alreadyDrawn += l.Quantity
		}
		if ev.LineID != "" && l.ID == ev.LineID {
			ve.Add("line_id", "duplicate line id "+ev.LineID)
		}
	}
	if ev.Quantity+alreadyDrawn > ev.Batch.RemainingQuantity {
		ve.Add("quantity", fmt.Sprintf("exceeds remaining quantity %d of batch %d", ev.Batch.RemainingQuantity-alreadyDrawn, ev.Batch.ID))
	}
	serials := make([]string, 0, len(ev.Serials))
	for _, s := range ev.Serials {
		s = strings.TrimSpace(s)
		if len(s) > validation.MaxSerialLength {
			ve.Add("serials", fmt.Sprintf("serial must be at most %d characters", validation.MaxSerialLength))
		}
		serials = append(serials, s)
	}
	if len(serials) > ev.Quantity && ev.Quantity >= 1 {
		ve.Add("serials", fmt.Sprintf("at most %d serials for quantity %d", ev.Quantity, ev.Quantity))
	}
	if ve.HasErrors() {
		return c, ve
	}

	id := ev.LineID
	if id == "" {
		id = uuid.NewString()
	}
	line := CartLine{
		ID:             id,
		ProductID:      ev.Product.ID,
		ProductName:    ev.Product.Name,
		BatchID:        ev.Batch.ID,
		UnitPrice:      ev.Batch.UnitPrice,
		WarrantyMonths: ev.Batch.WarrantyMonths,
		Quantity:       ev.Quantity,
		Discount:       ClampDiscount(ev.Discount),
		Serials:        serials,
	}
	lines := make([]CartLine, len(c.lines), len(c.lines)+1)
	copy(lines, c.lines)
	return Cart{lines: append(lines, line)}, nil
}

func (ev RemoveLine) applyTo(c Cart) (Cart, error) {
	for i, l := range c.lines {
		if l.ID != ev.LineID {
			continue
		}
		lines := make([]CartLine, 0, len(c.lines)-1)
		lines = append(lines, c.lines[:i]...)
		lines = append(lines, c.lines[i+1:]...)
		return Cart{lines: lines}, nil
	}
	return c, validation.Single("line_id", "no line "+ev.LineID+" in cart")
}

func (ClearCart) applyTo(Cart) (Cart, error) {
	return Cart{}, nil
}
