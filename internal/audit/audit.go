package audit

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"possale/internal/logging"
)

// Action constants.
const (
	ActionCreate  = "CREATE"
	ActionUpdate  = "UPDATE"
	ActionReverse = "REVERSE"
	ActionLogin   = "LOGIN"
	ActionLogout  = "LOGOUT"
)

// Entry is one audit_log row.
type Entry struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at"`
}

// Logger writes audit entries. A failed write is logged and swallowed so
// that auditing never fails the action it records.
type Logger struct {
	DB  *sql.DB
	Log *logrus.Logger
}

func (l *Logger) Record(ctx context.Context, username, action, module, recordID, summary string) {
	_, err := l.DB.ExecContext(ctx,
		"INSERT INTO audit_log (username, action, module, record_id, summary) VALUES (?, ?, ?, ?, ?)",
		username, action, module, recordID, summary)
	if err != nil {
		logging.LogError(l.Log, "audit", "Record", "insert audit_log", logrus.Fields{"action": action, "record_id": recordID}, err)
	}
}

// ForModule binds module, matching pos.AuditFunc.
func (l *Logger) ForModule(module string) func(ctx context.Context, username, action, recordID, summary string) {
	return func(ctx context.Context, username, action, recordID, summary string) {
		l.Record(ctx, username, action, module, recordID, summary)
	}
}

// List returns the newest entries for module, or for every module when
// module is empty.
func (l *Logger) List(ctx context.Context, module string, limit int) ([]Entry, error) {
	q := "SELECT id, COALESCE(username,''), action, module, record_id, COALESCE(summary,''), created_at FROM audit_log"
	var args []interface{}
	if module != "" {
		q += " WHERE module = ?"
		args = append(args, module)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)
	rows, err := l.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Username, &e.Action, &e.Module, &e.RecordID, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetClientIP extracts the real client IP from the request (handles proxies).
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
