package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"possale/internal/auth"
	"possale/internal/models"
	"possale/internal/store"
)

// initDB opens the SQLite database and runs migrations. Writes take the
// database lock at BEGIN so concurrent commits queue on busy_timeout instead
// of failing on lock upgrade.
func initDB(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// seedAdmin creates the admin account on first run when a password is
// configured.
func seedAdmin(ctx context.Context, db *sql.DB, password string, log *logrus.Logger) error {
	if password == "" {
		return nil
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := auth.CreateUser(ctx, db, "admin", password, "Administrator", auth.RoleAdmin); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.WithField("username", "admin").Info("created admin account")
	return nil
}

// seedDemo loads a small catalog for local runs. It does nothing once any
// product exists.
func seedDemo(ctx context.Context, s *store.Store, log *logrus.Logger) error {
	var n int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	now := time.Now().UTC()
	demo := []struct {
		name, category string
		batches        []models.StockBatch
	}{
		{"USB-C Charger 65W", "accessories", []models.StockBatch{
			{IntakeDate: now.AddDate(0, -2, 0), UnitCost: decimal.RequireFromString("18.00"), UnitPrice: decimal.RequireFromString("29.99"), WarrantyMonths: 12, TotalQuantity: 10},
			{IntakeDate: now.AddDate(0, 0, -3), UnitCost: decimal.RequireFromString("19.50"), UnitPrice: decimal.RequireFromString("31.99"), WarrantyMonths: 12, TotalQuantity: 5},
		}},
		{"Wireless Mouse", "accessories", []models.StockBatch{
			{IntakeDate: now.AddDate(0, -1, 0), UnitCost: decimal.RequireFromString("7.25"), UnitPrice: decimal.RequireFromString("14.50"), WarrantyMonths: 6, TotalQuantity: 3},
		}},
		{"Refurbished Laptop 14\"", "computers", []models.StockBatch{
			{IntakeDate: now.AddDate(0, 0, -10), UnitCost: decimal.RequireFromString("310.00"), UnitPrice: decimal.RequireFromString("449.00"), WarrantyMonths: 24, TotalQuantity: 2},
		}},
	}
	for _, d := range demo {
		p, err := s.CreateProduct(ctx, models.Product{Name: d.name, Category: d.category})
		if err != nil {
			return err
		}
		for _, b := range d.batches {
			b.ProductID = p.ID
			if _, err := s.ReceiveBatch(ctx, b); err != nil {
				return err
			}
		}
	}
	log.WithField("products", len(demo)).Info("seeded demo catalog")
	return nil
}
