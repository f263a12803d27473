package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"possale/internal/models"
	"possale/internal/validation"
)

// LineRequest is one requested line as it arrives from a client.
type LineRequest struct {
	ProductID int64
	BatchID   int64
	Quantity  int
	Discount  decimal.Decimal
	Serials   []string
}

// CommitRequest is a draft sale ready for commit.
type CommitRequest struct {
	Cart           Cart
	Customer       models.Customer
	PaymentMethod  models.PaymentMethod
	AmountTendered decimal.Decimal
	// IdempotencyKey makes a retried commit return the first result.
	IdempotencyKey string
}

// BuildCart turns requested lines into a cart using the current batch state.
// A line that the batch can no longer cover fails with a *StockError.
func (s *Service) BuildCart(ctx context.Context, lines []LineRequest) (Cart, error) {
	cart := NewCart()
	drawn := make(map[int64]int)
	for i, lr := range lines {
		product, err := s.Batches.GetProduct(ctx, lr.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return cart, validation.Single(fmt.Sprintf("lines[%d].product_id", i), "unknown product")
			}
			return cart, err
		}
		batch, err := s.Batches.GetBatch(ctx, lr.BatchID)
		if err != nil {
			if errors.Is(err, ErrBatchNotFound) {
				return cart, validation.Single(fmt.Sprintf("lines[%d].batch_id", i), "unknown batch")
			}
			return cart, err
		}
		if lr.Quantity >= 1 && drawn[batch.ID]+lr.Quantity > batch.RemainingQuantity {
			return cart, &StockError{
				BatchID:   batch.ID,
				Requested: drawn[batch.ID] + lr.Quantity,
				Available: batch.RemainingQuantity,
			}
		}
		next, err := cart.Apply(AddLine{
			Product:  product,
			Batch:    batch,
			Quantity: lr.Quantity,
			Discount: lr.Discount,
			Serials:  lr.Serials,
		})
		if err != nil {
			return cart, prefixFields(err, fmt.Sprintf("lines[%d].", i))
		}
		cart = next
		drawn[batch.ID] += lr.Quantity
	}
	return cart, nil
}

func prefixFields(err error, prefix string) error {
	var ve *validation.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &validation.ValidationErrors{}
	for _, e := range ve.Errors {
		out.Add(prefix+e.Field, e.Message)
	}
	return out
}

// Commit validates the draft, then atomically decrements stock and persists
// the sale. It fails with a *validation.ValidationErrors, ErrInvalidPayment
// or ErrInsufficientStock; in every failure case nothing is written.
func (s *Service) Commit(ctx context.Context, actor Actor, req CommitRequest) (models.Sale, error) {
	if !actor.CanSell() {
		return models.Sale{}, ErrForbidden
	}
	customer, err := s.normalizeCustomer(req)
	if err != nil {
		return models.Sale{}, err
	}

	totals := CartTotals(req.Cart)
	rec := Reconcile(totals.GrandTotal, req.AmountTendered)
	if !rec.Payable {
		return models.Sale{}, ErrInvalidPayment
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.Sales.GetSaleByIdempotencyKey(ctx, key)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrSaleNotFound) {
			return models.Sale{}, err
		}
	}

	settings, err := s.Settings.POSSettings(ctx)
	if err != nil {
		return models.Sale{}, fmt.Errorf("load pos settings: %w", err)
	}

	now := s.now()
	draft := SaleDraft{
		Sale: models.Sale{
			Customer:       customer,
			Lines:          snapshotLines(req.Cart),
			PaymentMethod:  req.PaymentMethod,
			AmountTendered: req.AmountTendered,
			ChangeDue:      rec.ChangeDue,
			Subtotal:       totals.Subtotal,
			DiscountTotal:  totals.DiscountTotal,
			GrandTotal:     totals.GrandTotal,
			Status:         models.SaleCompleted,
			CreatedBy:      actor.Username,
			IdempotencyKey: key,
			CreatedAt:      now,
			UndoDeadline:   now.Add(time.Duration(settings.UndoLimitMinutes) * time.Minute),
		},
		LowStockThreshold: settings.LowStockThreshold,
	}

	sale, notes, err := s.commitLocked(ctx, req.Cart.BatchIDs(), draft)
	if err != nil {
		if key != "" && !errors.Is(err, ErrInsufficientStock) {
			// A concurrent retry with the same key may have won the insert.
			if existing, lookupErr := s.Sales.GetSaleByIdempotencyKey(ctx, key); lookupErr == nil {
				return existing, nil
			}
		}
		return models.Sale{}, err
	}

	s.publish(notes)
	s.audit(ctx, actor.Username, "CREATE", sale.InvoiceNumber,
		fmt.Sprintf("Committed sale %s total %s", sale.InvoiceNumber, sale.GrandTotal.StringFixed(CurrencyPlaces)))
	s.logger().WithFields(logrus.Fields{
		"invoice": sale.InvoiceNumber,
		"user":    actor.Username,
		"lines":   len(sale.Lines),
		"total":   sale.GrandTotal.StringFixed(CurrencyPlaces),
	}).Info("sale committed")
	return sale, nil
}

func (s *Service) commitLocked(ctx context.Context, batchIDs []int64, d SaleDraft) (models.Sale, []models.Notification, error) {
	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, batchIDs)
		if err != nil {
			return models.Sale{}, nil, fmt.Errorf("lock batches: %w", err)
		}
		defer unlock()
	}
	return s.Sales.CommitSale(ctx, d)
}

func (s *Service) normalizeCustomer(req CommitRequest) (models.Customer, error) {
	ve := &validation.ValidationErrors{}
	if req.Cart.IsEmpty() {
		ve.Add("lines", "cart is empty")
	}
	c := req.Customer
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	validation.ValidateMaxLength(ve, "customer.name", c.Name, validation.MaxCustomerNameLength)
	if c.WalkIn {
		if c.Name == "" {
			c.Name = models.WalkInName
		}
	} else {
		if c.Phone == "" {
			ve.Add("customer.phone", "is required unless the customer is a walk-in")
		} else {
			validation.ValidatePhone(ve, "customer.phone", c.Phone, s.PhoneRegion)
			if !ve.HasErrors() {
				c.Phone = validation.NormalizePhone(c.Phone, s.PhoneRegion)
			}
		}
	}
	validation.RequireField(ve, "payment_method", string(req.PaymentMethod))
	validation.ValidateEnum(ve, "payment_method", string(req.PaymentMethod), validation.ValidPaymentMethods)
	validation.ValidateNonNegativeDecimal(ve, "amount_tendered", req.AmountTendered)
	return c, ve.Err()
}

func snapshotLines(c Cart) []models.SaleLine {
	lines := make([]models.SaleLine, 0, c.Len())
	for _, l := range c.lines {
		serials := make([]string, len(l.Serials))
		copy(serials, l.Serials)
		lines = append(lines, models.SaleLine{
			ProductID:      l.ProductID,
			BatchID:        l.BatchID,
			ProductName:    l.ProductName,
			UnitPrice:      l.UnitPrice,
			Discount:       l.Discount,
			Quantity:       l.Quantity,
			Serials:        serials,
			WarrantyMonths: l.WarrantyMonths,
			LineTotal:      l.Subtotal(),
		})
	}
	return lines
}
