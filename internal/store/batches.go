package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"possale/internal/models"
	"possale/internal/pos"
)

const batchColumns = `id, product_id, intake_date, unit_cost, unit_price, warranty_months, remaining_quantity, total_quantity`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (models.StockBatch, error) {
	var b models.StockBatch
	var intake, cost, price string
	if err := row.Scan(&b.ID, &b.ProductID, &intake, &cost, &price, &b.WarrantyMonths, &b.RemainingQuantity, &b.TotalQuantity); err != nil {
		return b, err
	}
	b.IntakeDate = parseTime(intake)
	b.UnitCost = parseDecimal(cost)
	b.UnitPrice = parseDecimal(price)
	return b, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (models.Product, error) {
	var p models.Product
	err := s.DB.QueryRowContext(ctx, "SELECT id, name, COALESCE(category,'') FROM products WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return p, pos.ErrProductNotFound
	}
	return p, err
}

func (s *Store) GetBatch(ctx context.Context, id int64) (models.StockBatch, error) {
	b, err := scanBatch(s.DB.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM stock_batches WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, pos.ErrBatchNotFound
	}
	return b, err
}

// ListAvailableBatches returns batches with stock left, oldest intake first.
func (s *Store) ListAvailableBatches(ctx context.Context, productID int64) ([]models.StockBatch, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+batchColumns+` FROM stock_batches
		WHERE product_id = ? AND remaining_quantity > 0
		ORDER BY intake_date ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []models.StockBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListProducts returns the catalog with current on-hand stock, by name.
func (s *Store) ListProducts(ctx context.Context) ([]ProductStock, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT p.id, p.name, COALESCE(p.category,''),
		COALESCE(SUM(b.remaining_quantity), 0)
		FROM products p LEFT JOIN stock_batches b ON b.product_id = p.id
		GROUP BY p.id ORDER BY p.name, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ProductStock{}
	for rows.Next() {
		var ps ProductStock
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.Category, &ps.OnHand); err != nil {
			return nil, err
		}
		items = append(items, ps)
	}
	return items, rows.Err()
}

// ProductStock is a product with its total remaining quantity.
type ProductStock struct {
	models.Product
	OnHand int `json:"on_hand"`
}

// CreateProduct inserts a catalog product.
func (s *Store) CreateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	res, err := s.DB.ExecContext(ctx, "INSERT INTO products (name, category) VALUES (?, ?)", p.Name, p.Category)
	if err != nil {
		return p, fmt.Errorf("insert product: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return p, err
}

// ReceiveBatch records a received purchase lot. Remaining starts at total.
func (s *Store) ReceiveBatch(ctx context.Context, b models.StockBatch) (models.StockBatch, error) {
	if _, err := s.GetProduct(ctx, b.ProductID); err != nil {
		return b, err
	}
	b.RemainingQuantity = b.TotalQuantity
	res, err := s.DB.ExecContext(ctx, `INSERT INTO stock_batches
		(product_id, intake_date, unit_cost, unit_price, warranty_months, total_quantity, remaining_quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ProductID, formatTime(b.IntakeDate), b.UnitCost.String(), b.UnitPrice.String(),
		b.WarrantyMonths, b.TotalQuantity, b.RemainingQuantity)
	if err != nil {
		return b, fmt.Errorf("insert batch: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return b, err
}
