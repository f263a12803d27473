package pos

import (
	"context"
	"fmt"

	"possale/internal/models"
)

// BatchSource reads purchasable stock.
type BatchSource interface {
	GetProduct(ctx context.Context, id int64) (models.Product, error)
	GetBatch(ctx context.Context, id int64) (models.StockBatch, error)
	// ListAvailableBatches returns batches with stock left, oldest intake first.
	ListAvailableBatches(ctx context.Context, productID int64) ([]models.StockBatch, error)
}

// Allocator offers batches to the counter. Its answers are advisory: the
// committer re-checks remaining quantity when the sale is written.
type Allocator struct {
	Source BatchSource
}

// ListAvailableBatches returns the product's batches with remaining stock in
// intake order.
func (a *Allocator) ListAvailableBatches(ctx context.Context, productID int64) ([]models.StockBatch, error) {
	if _, err := a.Source.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	batches, err := a.Source.ListAvailableBatches(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list batches for product %d: %w", productID, err)
	}
	out := make([]models.StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.RemainingQuantity > 0 {
			out = append(out, b)
		}
	}
	return out, nil
}

// AutoSelect picks the batch when exactly one is eligible.
func AutoSelect(batches []models.StockBatch) (models.StockBatch, bool) {
	if len(batches) != 1 {
		return models.StockBatch{}, false
	}
	return batches[0], true
}

// Selection is what the counter shows after a product is scanned.
type Selection struct {
	Product  models.Product      `json:"product"`
	Batches  []models.StockBatch `json:"batches"`
	Selected *models.StockBatch  `json:"selected"`
	// EntryEnabled is false when nothing can be sold; quantity and serial
	// entry stay disabled.
	EntryEnabled bool `json:"entry_enabled"`
}

// Select lists a product's batches and auto-selects a lone batch.
func (a *Allocator) Select(ctx context.Context, productID int64) (Selection, error) {
	product, err := a.Source.GetProduct(ctx, productID)
	if err != nil {
		return Selection{}, err
	}
	batches, err := a.ListAvailableBatches(ctx, productID)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Product: product, Batches: batches, EntryEnabled: len(batches) > 0}
	if b, ok := AutoSelect(batches); ok {
		sel.Selected = &b
	}
	return sel, nil
}
