package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"possale/internal/models"
)

const (
	KeyUndoLimitMinutes  = "pos_undo_limit_minutes"
	KeyLowStockThreshold = "pos_low_stock_threshold"
)

// Settings reads and writes counter settings in app_settings. Defaults fill
// keys that were never saved.
type Settings struct {
	DB       *sql.DB
	Defaults models.POSSettings
}

func (s *Settings) intSetting(ctx context.Context, key string, def int) (int, error) {
	var val string
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM app_settings WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def, nil
	}
	return n, nil
}

func (s *Settings) POSSettings(ctx context.Context) (models.POSSettings, error) {
	limit, err := s.intSetting(ctx, KeyUndoLimitMinutes, s.Defaults.UndoLimitMinutes)
	if err != nil {
		return models.POSSettings{}, err
	}
	low, err := s.intSetting(ctx, KeyLowStockThreshold, s.Defaults.LowStockThreshold)
	if err != nil {
		return models.POSSettings{}, err
	}
	return models.POSSettings{UndoLimitMinutes: limit, LowStockThreshold: low}, nil
}

// SavePOSSettings upserts both keys in one transaction. Callers validate.
func (s *Settings) SavePOSSettings(ctx context.Context, v models.POSSettings) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	vals := map[string]int{
		KeyUndoLimitMinutes:  v.UndoLimitMinutes,
		KeyLowStockThreshold: v.LowStockThreshold,
	}
	for key, val := range vals {
		if _, err := tx.ExecContext(ctx, `INSERT INTO app_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, strconv.Itoa(val)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
