package pos

import (
	"encoding/json"
	"fmt"

	"possale/internal/models"
)

func payload(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// SaleCreatedNotification announces a committed sale.
func SaleCreatedNotification(s models.Sale) models.Notification {
	return models.Notification{
		Type:    models.NotifyOrder,
		Title:   "Sale completed",
		Message: fmt.Sprintf("%s sold %d line(s) to %s for %s", s.CreatedBy, len(s.Lines), s.Customer.Name, s.GrandTotal.StringFixed(CurrencyPlaces)),
		Payload: payload(map[string]interface{}{
			"invoice_number": s.InvoiceNumber,
			"grand_total":    s.GrandTotal,
			"payment_method": s.PaymentMethod,
		}),
		RelatedID: s.InvoiceNumber,
		CreatedAt: s.CreatedAt,
	}
}

// SaleReversedNotification announces an executed undo.
func SaleReversedNotification(s models.Sale, e models.UndoLogEntry) models.Notification {
	return models.Notification{
		Type:    models.NotifyOrder,
		Title:   "Sale reversed",
		Message: fmt.Sprintf("%s reversed %s (%s)", e.Username, s.InvoiceNumber, e.ReasonCode),
		Payload: payload(map[string]interface{}{
			"invoice_number": s.InvoiceNumber,
			"reason_code":    e.ReasonCode,
			"grand_total":    s.GrandTotal,
		}),
		RelatedID: s.InvoiceNumber,
		CreatedAt: e.CreatedAt,
	}
}

// LowStockNotification warns that a batch dropped to the threshold or below.
func LowStockNotification(b models.StockBatch, productName string, threshold int) models.Notification {
	return models.Notification{
		Type:    models.NotifyInventory,
		Title:   "Low stock",
		Message: fmt.Sprintf("%s batch %d has %d left", productName, b.ID, b.RemainingQuantity),
		Payload: payload(map[string]interface{}{
			"product_id":         b.ProductID,
			"batch_id":           b.ID,
			"remaining_quantity": b.RemainingQuantity,
			"threshold":          threshold,
		}),
		RelatedID: fmt.Sprintf("%d", b.ID),
	}
}

// IsLowStock reports whether remaining has reached threshold. A threshold
// of 0 disables the warning.
func IsLowStock(remaining, threshold int) bool {
	return threshold > 0 && remaining <= threshold
}
