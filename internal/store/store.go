// Package store persists the sales counter in SQLite.
package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is how timestamps are stored. Fixed width, UTC, so that
// string comparison in SQL matches time order.
const TimeLayout = "2006-01-02 15:04:05.000000"

// Store implements the pos storage interfaces over database/sql.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{TimeLayout, "2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ns maps an empty string to NULL.
func ns(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
