package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"possale/internal/models"
	"possale/internal/pos"
)

// ReverseSale restocks and marks a sale reversed in one transaction. The
// status flip is conditional on the sale still being completed, inside its
// deadline and the reversing user's most recent sale, so a second reversal,
// a late one or one overtaken by a newer sale is a no-op.
func (s *Store) ReverseSale(ctx context.Context, d pos.ReversalDraft) (models.UndoLogEntry, []models.Notification, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.UndoLogEntry{}, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE sales SET status = 'reversed', reversed_at = ?
		WHERE id = ? AND status = 'completed' AND undo_deadline > ?
		AND id = (SELECT MAX(id) FROM sales WHERE created_by = ?)`,
		formatTime(d.At), d.Sale.ID, formatTime(d.At), d.Username)
	if err != nil {
		return models.UndoLogEntry{}, nil, fmt.Errorf("mark sale reversed: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		var status string
		var latest bool
		err := tx.QueryRowContext(ctx, `SELECT status,
			COALESCE(id = (SELECT MAX(id) FROM sales WHERE created_by = ?), 0)
			FROM sales WHERE id = ?`, d.Username, d.Sale.ID).Scan(&status, &latest)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.UndoLogEntry{}, nil, pos.ErrSaleNotFound
		case err != nil:
			return models.UndoLogEntry{}, nil, err
		case status == string(models.SaleReversed):
			return models.UndoLogEntry{}, nil, pos.ErrWindowAlreadyUsed
		case !latest:
			return models.UndoLogEntry{}, nil, pos.ErrNotLatestSale
		}
		return models.UndoLogEntry{}, nil, pos.ErrWindowExpired
	}

	for _, l := range d.Sale.Lines {
		if _, err := tx.ExecContext(ctx,
			"UPDATE stock_batches SET remaining_quantity = remaining_quantity + ? WHERE id = ?",
			l.Quantity, l.BatchID); err != nil {
			return models.UndoLogEntry{}, nil, fmt.Errorf("restock batch %d: %w", l.BatchID, err)
		}
	}

	snapshot, err := json.Marshal(d.Sale)
	if err != nil {
		return models.UndoLogEntry{}, nil, err
	}
	entry := models.UndoLogEntry{
		SaleID:        d.Sale.ID,
		InvoiceNumber: d.Sale.InvoiceNumber,
		Username:      d.Username,
		ReasonCode:    d.ReasonCode,
		ReasonDetails: d.ReasonDetails,
		SaleSnapshot:  snapshot,
		CreatedAt:     d.At,
	}
	res, err = tx.ExecContext(ctx, `INSERT INTO undo_log
		(sale_id, invoice_number, username, reason_code, reason_details, sale_snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SaleID, entry.InvoiceNumber, entry.Username, entry.ReasonCode, entry.ReasonDetails,
		string(snapshot), formatTime(entry.CreatedAt))
	if err != nil {
		return models.UndoLogEntry{}, nil, fmt.Errorf("insert undo log: %w", err)
	}
	entry.ID, _ = res.LastInsertId()

	n, err := insertNotification(ctx, tx, pos.SaleReversedNotification(d.Sale, entry))
	if err != nil {
		return models.UndoLogEntry{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return models.UndoLogEntry{}, nil, err
	}
	return entry, []models.Notification{n}, nil
}

// ListUndoLog returns username's reversals, newest first. An empty username
// lists everyone's.
func (s *Store) ListUndoLog(ctx context.Context, username string) ([]models.UndoLogEntry, error) {
	q := `SELECT id, sale_id, invoice_number, username, reason_code, COALESCE(reason_details,''),
		sale_snapshot, created_at FROM undo_log`
	var args []interface{}
	if username != "" {
		q += " WHERE username = ?"
		args = append(args, username)
	}
	q += " ORDER BY id DESC"
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []models.UndoLogEntry{}
	for rows.Next() {
		var e models.UndoLogEntry
		var snapshot, created string
		if err := rows.Scan(&e.ID, &e.SaleID, &e.InvoiceNumber, &e.Username, &e.ReasonCode,
			&e.ReasonDetails, &snapshot, &created); err != nil {
			return nil, err
		}
		e.SaleSnapshot = json.RawMessage(snapshot)
		e.CreatedAt = parseTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
