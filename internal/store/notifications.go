package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"possale/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertNotification(ctx context.Context, db execer, n models.Notification) (models.Notification, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var payload sql.NullString
	if len(n.Payload) > 0 {
		payload = sql.NullString{String: string(n.Payload), Valid: true}
	}
	res, err := db.ExecContext(ctx, `INSERT INTO notifications (type, title, message, payload, related_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(n.Type), n.Title, n.Message, payload, n.RelatedID, formatTime(n.CreatedAt))
	if err != nil {
		return n, fmt.Errorf("insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	return n, err
}

// CreateNotification stores a notification outside any sale transaction.
func (s *Store) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	return insertNotification(ctx, s.DB, n)
}

// ListNotifications returns the full inbox, newest first.
func (s *Store) ListNotifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error) {
	q := `SELECT id, type, title, COALESCE(message,''), payload, COALESCE(related_id,''), read_at, created_at
		FROM notifications`
	if unreadOnly {
		q += ` WHERE read_at IS NULL`
	}
	q += ` ORDER BY id DESC`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	notes := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var typ, created string
		var payload, readAt sql.NullString
		if err := rows.Scan(&n.ID, &typ, &n.Title, &n.Message, &payload, &n.RelatedID, &readAt, &created); err != nil {
			return nil, err
		}
		n.Type = models.NotificationType(typ)
		if payload.Valid {
			n.Payload = []byte(payload.String)
		}
		n.Read = readAt.Valid
		n.CreatedAt = parseTime(created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ApplyNotificationUpdate performs a read/delete transition. It reports
// whether any row changed.
func (s *Store) ApplyNotificationUpdate(ctx context.Context, u models.NotificationUpdate) (bool, error) {
	now := formatTime(time.Now())
	var res sql.Result
	var err error
	switch u.Action {
	case models.ActionRead:
		res, err = s.DB.ExecContext(ctx, "UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL", now, u.ID)
	case models.ActionReadAll:
		res, err = s.DB.ExecContext(ctx, "UPDATE notifications SET read_at = ? WHERE read_at IS NULL", now)
	case models.ActionDelete:
		res, err = s.DB.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", u.ID)
	case models.ActionDeleteAll:
		res, err = s.DB.ExecContext(ctx, "DELETE FROM notifications")
	default:
		return false, fmt.Errorf("unknown notification action %q", u.Action)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// NotificationExists reports whether id is in the inbox.
func (s *Store) NotificationExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications WHERE id = ?", id).Scan(&n)
	return n > 0, err
}
