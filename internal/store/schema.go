package store

import (
	"database/sql"
	"fmt"
)

// Tables lists every table the sales counter needs. Enum CHECKs must match
// internal/validation/enums.go.
var Tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		role TEXT DEFAULT 'cashier' CHECK(role IN ('admin','cashier','viewer')),
		active INTEGER DEFAULT 1,
		failed_login_attempts INTEGER DEFAULT 0,
		locked_until TEXT,
		last_login TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		category TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS stock_batches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL,
		intake_date TEXT NOT NULL,
		unit_cost TEXT NOT NULL DEFAULT '0',
		unit_price TEXT NOT NULL DEFAULT '0',
		warranty_months INTEGER NOT NULL DEFAULT 0 CHECK(warranty_months >= 0),
		total_quantity INTEGER NOT NULL CHECK(total_quantity >= 0),
		remaining_quantity INTEGER NOT NULL CHECK(remaining_quantity >= 0 AND remaining_quantity <= total_quantity),
		FOREIGN KEY (product_id) REFERENCES products(id)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_number TEXT UNIQUE NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		walk_in INTEGER NOT NULL DEFAULT 0,
		payment_method TEXT NOT NULL CHECK(payment_method IN ('cash','card','bank_transfer','mobile_wallet')),
		amount_tendered TEXT NOT NULL,
		change_due TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		discount_total TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'completed' CHECK(status IN ('completed','reversed')),
		created_by TEXT NOT NULL,
		idempotency_key TEXT,
		created_at TEXT NOT NULL,
		undo_deadline TEXT NOT NULL,
		reversed_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sale_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		batch_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		discount TEXT NOT NULL DEFAULT '0',
		quantity INTEGER NOT NULL CHECK(quantity > 0),
		serials TEXT NOT NULL DEFAULT '[]',
		warranty_months INTEGER NOT NULL DEFAULT 0,
		line_total TEXT NOT NULL,
		FOREIGN KEY (sale_id) REFERENCES sales(id)
	)`,
	`CREATE TABLE IF NOT EXISTS undo_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL,
		invoice_number TEXT NOT NULL,
		username TEXT NOT NULL,
		reason_code TEXT NOT NULL CHECK(reason_code IN ('customer_request','wrong_item','wrong_quantity','pricing_error','payment_issue','other')),
		reason_details TEXT DEFAULT '',
		sale_snapshot TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (sale_id) REFERENCES sales(id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL CHECK(type IN ('order','inventory','repair','customer','payment','system')),
		title TEXT NOT NULL,
		message TEXT DEFAULT '',
		payload TEXT,
		related_id TEXT DEFAULT '',
		read_at TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT NOT NULL,
		summary TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

var indexes = []string{
	"CREATE UNIQUE INDEX IF NOT EXISTS idx_sales_idempotency ON sales(idempotency_key) WHERE idempotency_key IS NOT NULL",
	"CREATE INDEX IF NOT EXISTS idx_sales_created_by ON sales(created_by, id)",
	"CREATE INDEX IF NOT EXISTS idx_sale_lines_sale ON sale_lines(sale_id)",
	"CREATE INDEX IF NOT EXISTS idx_batches_product ON stock_batches(product_id, intake_date)",
	"CREATE INDEX IF NOT EXISTS idx_undo_log_user ON undo_log(username)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at)",
	"CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)",
}

// Migrate creates all tables and indexes. It is safe to run repeatedly.
func Migrate(db *sql.DB) error {
	for _, t := range Tables {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("migration error: %w", err)
		}
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("index error: %w", err)
		}
	}
	return nil
}
