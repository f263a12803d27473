package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/store"
	"possale/internal/testutil"
)

func TestListAvailableBatchesOldestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	pid := testutil.SeedProduct(t, db, "Charger")
	newer := testutil.SeedBatch(t, db, pid, 4, "31.99", day)
	older := testutil.SeedBatch(t, db, pid, 2, "29.99", day.AddDate(0, -2, 0))
	testutil.SeedBatch(t, db, pid, 0, "28.00", day.AddDate(0, -6, 0))

	batches, err := st.ListAvailableBatches(context.Background(), pid)
	if err != nil {
		t.Fatalf("ListAvailableBatches failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches with stock, got %d", len(batches))
	}
	if batches[0].ID != older || batches[1].ID != newer {
		t.Errorf("Expected order [%d %d], got [%d %d]", older, newer, batches[0].ID, batches[1].ID)
	}
	if !batches[0].UnitPrice.Equal(decimal.RequireFromString("29.99")) || !batches[0].IntakeDate.Equal(day.AddDate(0, -2, 0)) {
		t.Errorf("Unexpected batch %+v", batches[0])
	}
}

func TestLookupMissing(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	if _, err := st.GetProduct(context.Background(), 42); !errors.Is(err, pos.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
	if _, err := st.GetBatch(context.Background(), 42); !errors.Is(err, pos.ErrBatchNotFound) {
		t.Errorf("Expected ErrBatchNotFound, got %v", err)
	}
	if _, err := st.GetSaleByInvoice(context.Background(), "INV-20260314-0001"); !errors.Is(err, pos.ErrSaleNotFound) {
		t.Errorf("Expected ErrSaleNotFound, got %v", err)
	}
	if _, err := st.ReceiveBatch(context.Background(), models.StockBatch{ProductID: 42, TotalQuantity: 1}); !errors.Is(err, pos.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound on receive, got %v", err)
	}
}

func TestProductsWithOnHand(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := context.Background()

	mouse, err := st.CreateProduct(ctx, models.Product{Name: "Wireless Mouse", Category: "accessories"})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if _, err := st.CreateProduct(ctx, models.Product{Name: "Cable"}); err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	for _, qty := range []int{3, 4} {
		b, err := st.ReceiveBatch(ctx, models.StockBatch{
			ProductID:      mouse.ID,
			IntakeDate:     day,
			UnitCost:       decimal.RequireFromString("6.00"),
			UnitPrice:      decimal.RequireFromString("14.50"),
			WarrantyMonths: 6,
			TotalQuantity:  qty,
		})
		if err != nil {
			t.Fatalf("ReceiveBatch failed: %v", err)
		}
		if b.RemainingQuantity != qty || b.ID == 0 {
			t.Errorf("Expected fresh batch with %d remaining, got %+v", qty, b)
		}
	}

	items, err := st.ListProducts(ctx)
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 products, got %d", len(items))
	}
	if items[0].Name != "Cable" || items[0].OnHand != 0 {
		t.Errorf("Expected Cable with 0 on hand first, got %+v", items[0])
	}
	if items[1].Name != "Wireless Mouse" || items[1].OnHand != 7 || items[1].Category != "accessories" {
		t.Errorf("Expected Wireless Mouse with 7 on hand, got %+v", items[1])
	}
}

func TestSettingsDefaultsAndSave(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := &store.Settings{DB: db, Defaults: models.POSSettings{UndoLimitMinutes: 10, LowStockThreshold: 2}}
	ctx := context.Background()

	got, err := s.POSSettings(ctx)
	if err != nil {
		t.Fatalf("POSSettings failed: %v", err)
	}
	if got.UndoLimitMinutes != 10 || got.LowStockThreshold != 2 {
		t.Errorf("Expected defaults, got %+v", got)
	}

	if err := s.SavePOSSettings(ctx, models.POSSettings{UndoLimitMinutes: 3, LowStockThreshold: 0}); err != nil {
		t.Fatalf("SavePOSSettings failed: %v", err)
	}
	if err := s.SavePOSSettings(ctx, models.POSSettings{UndoLimitMinutes: 15, LowStockThreshold: 0}); err != nil {
		t.Fatalf("SavePOSSettings failed: %v", err)
	}
	got, _ = s.POSSettings(ctx)
	if got.UndoLimitMinutes != 15 || got.LowStockThreshold != 0 {
		t.Errorf("Expected saved values, got %+v", got)
	}
}

func seedNotifications(t *testing.T, st *store.Store, n int) []models.Notification {
	t.Helper()
	var out []models.Notification
	for i := 0; i < n; i++ {
		note, err := st.CreateNotification(context.Background(), models.Notification{
			Type:      models.NotifyOrder,
			Title:     "Sale completed",
			CreatedAt: day.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("CreateNotification failed: %v", err)
		}
		out = append(out, note)
	}
	return out
}

func TestNotificationUpdates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	ctx := context.Background()
	notes := seedNotifications(t, st, 3)

	steps := []struct {
		name    string
		update  models.NotificationUpdate
		changed bool
		total   int
		unread  int
	}{
		{"read one", models.NotificationUpdate{Action: models.ActionRead, ID: notes[0].ID}, true, 3, 2},
		{"read again", models.NotificationUpdate{Action: models.ActionRead, ID: notes[0].ID}, false, 3, 2},
		{"read all", models.NotificationUpdate{Action: models.ActionReadAll}, true, 3, 0},
		{"read all noop", models.NotificationUpdate{Action: models.ActionReadAll}, false, 3, 0},
		{"delete one", models.NotificationUpdate{Action: models.ActionDelete, ID: notes[1].ID}, true, 2, 0},
		{"delete missing", models.NotificationUpdate{Action: models.ActionDelete, ID: notes[1].ID}, false, 2, 0},
		{"delete all", models.NotificationUpdate{Action: models.ActionDeleteAll}, true, 0, 0},
		{"delete all noop", models.NotificationUpdate{Action: models.ActionDeleteAll}, false, 0, 0},
	}
	for _, step := range steps {
		changed, err := st.ApplyNotificationUpdate(ctx, step.update)
		if err != nil {
			t.Fatalf("%s: ApplyNotificationUpdate failed: %v", step.name, err)
		}
		if changed != step.changed {
			t.Errorf("%s: changed = %v, want %v", step.name, changed, step.changed)
		}
		all, _ := st.ListNotifications(ctx, false)
		unread, _ := st.ListNotifications(ctx, true)
		if len(all) != step.total || len(unread) != step.unread {
			t.Errorf("%s: got %d total and %d unread, want %d and %d", step.name, len(all), len(unread), step.total, step.unread)
		}
	}

	if _, err := st.ApplyNotificationUpdate(ctx, models.NotificationUpdate{Action: "archive"}); err == nil {
		t.Error("Expected error for unknown action")
	}
}

func TestNotificationsNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	st := store.New(db)
	notes := seedNotifications(t, st, 2)

	ok, err := st.NotificationExists(context.Background(), notes[1].ID)
	if err != nil || !ok {
		t.Fatalf("Expected notification %d to exist, got %v %v", notes[1].ID, ok, err)
	}
	list, _ := st.ListNotifications(context.Background(), false)
	if list[0].ID != notes[1].ID || !list[0].CreatedAt.Equal(day.Add(time.Minute)) || list[0].Read {
		t.Errorf("Unexpected first notification %+v", list[0])
	}
}
