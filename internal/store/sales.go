package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"possale/internal/models"
	"possale/internal/pos"
)

const saleColumns = `id, invoice_number, customer_name, customer_phone, walk_in, payment_method,
	amount_tendered, change_due, subtotal, discount_total, grand_total, status, created_by,
	COALESCE(idempotency_key,''), created_at, undo_deadline, reversed_at`

// CommitSale writes a sale in one transaction. Each line decrements its
// batch only if enough stock remains, so two commits racing for the same
// batch can never both succeed past zero.
func (s *Store) CommitSale(ctx context.Context, d pos.SaleDraft) (models.Sale, []models.Notification, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Sale{}, nil, err
	}
	defer tx.Rollback()

	sale := d.Sale
	for _, l := range sale.Lines {
		if err := decrementBatch(ctx, tx, l.BatchID, l.Quantity); err != nil {
			return models.Sale{}, nil, err
		}
	}

	sale.InvoiceNumber, err = nextInvoice(ctx, tx, sale.CreatedAt)
	if err != nil {
		return models.Sale{}, nil, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO sales
		(invoice_number, customer_name, customer_phone, walk_in, payment_method, amount_tendered,
		 change_due, subtotal, discount_total, grand_total, status, created_by, idempotency_key,
		 created_at, undo_deadline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.InvoiceNumber, sale.Customer.Name, sale.Customer.Phone, sale.Customer.WalkIn,
		string(sale.PaymentMethod), sale.AmountTendered.String(), sale.ChangeDue.String(),
		sale.Subtotal.String(), sale.DiscountTotal.String(), sale.GrandTotal.String(),
		string(sale.Status), sale.CreatedBy, ns(sale.IdempotencyKey),
		formatTime(sale.CreatedAt), formatTime(sale.UndoDeadline))
	if err != nil {
		return models.Sale{}, nil, fmt.Errorf("insert sale: %w", err)
	}
	if sale.ID, err = res.LastInsertId(); err != nil {
		return models.Sale{}, nil, err
	}

	lines := make([]models.SaleLine, len(sale.Lines))
	for i, l := range sale.Lines {
		serials, _ := json.Marshal(l.Serials)
		res, err := tx.ExecContext(ctx, `INSERT INTO sale_lines
			(sale_id, product_id, batch_id, product_name, unit_price, discount, quantity, serials, warranty_months, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sale.ID, l.ProductID, l.BatchID, l.ProductName, l.UnitPrice.String(), l.Discount.String(),
			l.Quantity, string(serials), l.WarrantyMonths, l.LineTotal.String())
		if err != nil {
			return models.Sale{}, nil, fmt.Errorf("insert sale line: %w", err)
		}
		l.ID, _ = res.LastInsertId()
		lines[i] = l
	}
	sale.Lines = lines

	notes := []models.Notification{pos.SaleCreatedNotification(sale)}
	low, err := lowStockNotifications(ctx, tx, sale, d.LowStockThreshold)
	if err != nil {
		return models.Sale{}, nil, err
	}
	notes = append(notes, low...)
	for i := range notes {
		if notes[i], err = insertNotification(ctx, tx, notes[i]); err != nil {
			return models.Sale{}, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Sale{}, nil, err
	}
	return sale, notes, nil
}

func decrementBatch(ctx context.Context, tx *sql.Tx, batchID int64, qty int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE stock_batches SET remaining_quantity = remaining_quantity - ? WHERE id = ? AND remaining_quantity >= ?",
		qty, batchID, qty)
	if err != nil {
		return fmt.Errorf("decrement batch %d: %w", batchID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	var remaining int
	err = tx.QueryRowContext(ctx, "SELECT remaining_quantity FROM stock_batches WHERE id = ?", batchID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.ErrBatchNotFound
	}
	if err != nil {
		return err
	}
	return &pos.StockError{BatchID: batchID, Requested: qty, Available: remaining}
}

func lowStockNotifications(ctx context.Context, tx *sql.Tx, sale models.Sale, threshold int) ([]models.Notification, error) {
	if threshold <= 0 {
		return nil, nil
	}
	var notes []models.Notification
	seen := map[int64]bool{}
	for _, l := range sale.Lines {
		if seen[l.BatchID] {
			continue
		}
		seen[l.BatchID] = true
		b, err := scanBatch(tx.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM stock_batches WHERE id = ?", l.BatchID))
		if err != nil {
			return nil, err
		}
		if pos.IsLowStock(b.RemainingQuantity, threshold) {
			n := pos.LowStockNotification(b, l.ProductName, threshold)
			n.CreatedAt = sale.CreatedAt
			notes = append(notes, n)
		}
	}
	return notes, nil
}

// nextInvoice returns INV-YYYYMMDD-NNNN, one past the highest number issued
// that day. It must run inside the committing transaction.
func nextInvoice(ctx context.Context, tx *sql.Tx, at time.Time) (string, error) {
	prefix := "INV-" + at.UTC().Format("20060102") + "-"
	var maxID sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT invoice_number FROM sales WHERE invoice_number LIKE ?
		ORDER BY length(invoice_number) DESC, invoice_number DESC LIMIT 1`, prefix+"%").Scan(&maxID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("next invoice: %w", err)
	}
	next := 1
	if maxID.Valid {
		if n, err := strconv.Atoi(strings.TrimPrefix(maxID.String, prefix)); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, next), nil
}

func scanSale(row rowScanner) (models.Sale, error) {
	var sale models.Sale
	var method, status, tendered, change, subtotal, discount, grand, created, deadline string
	var reversed sql.NullString
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.Customer.Name, &sale.Customer.Phone, &sale.Customer.WalkIn,
		&method, &tendered, &change, &subtotal, &discount, &grand, &status, &sale.CreatedBy,
		&sale.IdempotencyKey, &created, &deadline, &reversed)
	if err != nil {
		return sale, err
	}
	sale.PaymentMethod = models.PaymentMethod(method)
	sale.Status = models.SaleStatus(status)
	sale.AmountTendered = parseDecimal(tendered)
	sale.ChangeDue = parseDecimal(change)
	sale.Subtotal = parseDecimal(subtotal)
	sale.DiscountTotal = parseDecimal(discount)
	sale.GrandTotal = parseDecimal(grand)
	sale.CreatedAt = parseTime(created)
	sale.UndoDeadline = parseTime(deadline)
	if reversed.Valid {
		t := parseTime(reversed.String)
		sale.ReversedAt = &t
	}
	return sale, nil
}

func (s *Store) loadSale(ctx context.Context, where string, args ...interface{}) (models.Sale, error) {
	sale, err := scanSale(s.DB.QueryRowContext(ctx, "SELECT "+saleColumns+" FROM sales "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return sale, pos.ErrSaleNotFound
	}
	if err != nil {
		return sale, err
	}
	sale.Lines, err = s.saleLines(ctx, sale.ID)
	return sale, err
}

func (s *Store) saleLines(ctx context.Context, saleID int64) ([]models.SaleLine, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, product_id, batch_id, product_name, unit_price, discount,
		quantity, serials, warranty_months, line_total FROM sale_lines WHERE sale_id = ? ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []models.SaleLine{}
	for rows.Next() {
		var l models.SaleLine
		var price, discount, serials, total string
		if err := rows.Scan(&l.ID, &l.ProductID, &l.BatchID, &l.ProductName, &price, &discount,
			&l.Quantity, &serials, &l.WarrantyMonths, &total); err != nil {
			return nil, err
		}
		l.UnitPrice = parseDecimal(price)
		l.Discount = parseDecimal(discount)
		l.LineTotal = parseDecimal(total)
		if err := json.Unmarshal([]byte(serials), &l.Serials); err != nil || l.Serials == nil {
			l.Serials = []string{}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *Store) GetSaleByInvoice(ctx context.Context, invoice string) (models.Sale, error) {
	return s.loadSale(ctx, "WHERE invoice_number = ?", invoice)
}

func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (models.Sale, error) {
	return s.loadSale(ctx, "WHERE idempotency_key = ?", key)
}

// LatestSale returns the most recent sale committed by username.
func (s *Store) LatestSale(ctx context.Context, username string) (models.Sale, error) {
	return s.loadSale(ctx, "WHERE created_by = ? ORDER BY id DESC LIMIT 1", username)
}
