package sales_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"possale/internal/auth"
	"possale/internal/handlers/sales"
	"possale/internal/locking"
	"possale/internal/models"
	"possale/internal/pos"
	"possale/internal/store"
	"possale/internal/testutil"
	"possale/internal/validation"
)

func setup(t *testing.T) (*sales.Handler, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := store.New(db)
	svc := &pos.Service{
		Batches:     st,
		Sales:       st,
		Settings:    &store.Settings{DB: db, Defaults: models.POSSettings{UndoLimitMinutes: 10}},
		Locker:      locking.NewLocal(),
		Log:         log,
		PhoneRegion: "US",
	}
	return &sales.Handler{Sales: svc, Allocator: &pos.Allocator{Source: st}, Validate: validation.NewStructValidator(), Log: log}, db
}

func as(req *http.Request, username, role string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: 1, Username: username, Role: role}))
}

func commitBody(productID, batchID int64, qty int, discount, tendered string, customer map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"customer":        customer,
		"lines":           []map[string]interface{}{{"product_id": productID, "batch_id": batchID, "quantity": qty, "discount": discount}},
		"payment_method":  "card",
		"amount_tendered": tendered,
	}
}

func TestCommitSaleRejections(t *testing.T) {
	h, db := setup(t)
	pid := testutil.SeedProduct(t, db, "Charger")
	bid := testutil.SeedBatch(t, db, pid, 5, "20.00", time.Now())
	walkIn := map[string]interface{}{"walk_in": true}

	tests := []struct {
		name   string
		role   string
		body   interface{}
		status int
		code   string
	}{
		{"viewer cannot sell", "viewer", commitBody(pid, bid, 1, "0", "20", walkIn), http.StatusForbidden, "FORBIDDEN"},
		{"discount over 100", "cashier", commitBody(pid, bid, 1, "150", "20", walkIn), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative discount", "cashier", commitBody(pid, bid, 1, "-5", "20", walkIn), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", "cashier", commitBody(pid, bid, 0, "0", "20", walkIn), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"no lines", "cashier", map[string]interface{}{"customer": walkIn, "lines": []interface{}{}, "payment_method": "cash", "amount_tendered": "0"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown payment method", "cashier", map[string]interface{}{"customer": walkIn, "lines": commitBody(pid, bid, 1, "0", "20", walkIn)["lines"], "payment_method": "iou", "amount_tendered": "20"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"phone required", "cashier", commitBody(pid, bid, 1, "0", "20", map[string]interface{}{"name": "Dana"}), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad phone", "cashier", commitBody(pid, bid, 1, "0", "20", map[string]interface{}{"phone": "12"}), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"short payment", "cashier", commitBody(pid, bid, 1, "0", "19.99", walkIn), http.StatusPaymentRequired, "INVALID_PAYMENT"},
		{"too many", "cashier", commitBody(pid, bid, 6, "0", "200", walkIn), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"unknown batch", "cashier", commitBody(pid, 999, 1, "0", "20", walkIn), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.CommitSale(w, as(testutil.AuthedJSONRequest("POST", "/api/v1/sales", tt.body, ""), "till1", tt.role))
			testutil.AssertStatus(t, w, tt.status)
			if e := testutil.DecodeError(t, w); e["code"] != tt.code {
				t.Errorf("Expected code %s, got %v", tt.code, e)
			}
		})
	}

	if n := testutil.Remaining(t, db, bid); n != 5 {
		t.Errorf("Rejected commits changed stock: %d remaining", n)
	}
}

// busyLocker reports every batch as held elsewhere.
type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, ids []int64) (func(), error) {
	return nil, fmt.Errorf("batch %d: %w", ids[0], locking.ErrLockBusy)
}

func TestCommitSaleBusyBatch(t *testing.T) {
	h, db := setup(t)
	h.Sales.Locker = busyLocker{}
	pid := testutil.SeedProduct(t, db, "Charger")
	bid := testutil.SeedBatch(t, db, pid, 5, "20.00", time.Now())

	w := httptest.NewRecorder()
	body := commitBody(pid, bid, 1, "0", "20", map[string]interface{}{"walk_in": true})
	h.CommitSale(w, as(testutil.AuthedJSONRequest("POST", "/api/v1/sales", body, ""), "till1", "cashier"))
	testutil.AssertStatus(t, w, http.StatusServiceUnavailable)
	if e := testutil.DecodeError(t, w); e["code"] != "BUSY" {
		t.Errorf("Expected code BUSY, got %v", e)
	}
	if n := testutil.Remaining(t, db, bid); n != 5 {
		t.Errorf("Busy commit changed stock: %d remaining", n)
	}
}

func TestCommitSaleNormalizesPhone(t *testing.T) {
	h, db := setup(t)
	pid := testutil.SeedProduct(t, db, "Charger")
	bid := testutil.SeedBatch(t, db, pid, 5, "20.00", time.Now())

	w := httptest.NewRecorder()
	body := commitBody(pid, bid, 1, "0", "20", map[string]interface{}{"name": " Dana Reyes ", "phone": "(650) 253-0000"})
	h.CommitSale(w, as(testutil.AuthedJSONRequest("POST", "/api/v1/sales", body, ""), "till1", "cashier"))
	testutil.AssertStatus(t, w, http.StatusOK)

	var sale models.Sale
	testutil.DecodeEnvelope(t, w, &sale)
	if sale.Customer.Phone != testutil.TestPhone || sale.Customer.Name != "Dana Reyes" {
		t.Errorf("Unexpected customer %+v", sale.Customer)
	}
	if sale.PaymentMethod != models.PaymentCard || !sale.ChangeDue.IsZero() {
		t.Errorf("Unexpected payment %s change %s", sale.PaymentMethod, sale.ChangeDue)
	}
}

func TestListBatches(t *testing.T) {
	h, db := setup(t)
	pid := testutil.SeedProduct(t, db, "Charger")
	empty := testutil.SeedProduct(t, db, "Discontinued")
	testutil.SeedBatch(t, db, pid, 2, "29.99", time.Now().AddDate(0, -1, 0))
	testutil.SeedBatch(t, db, pid, 2, "31.99", time.Now())

	w := httptest.NewRecorder()
	h.ListBatches(w, httptest.NewRequest("GET", "/", nil), itoa(pid))
	testutil.AssertStatus(t, w, http.StatusOK)
	var sel pos.Selection
	testutil.DecodeEnvelope(t, w, &sel)
	if len(sel.Batches) != 2 || sel.Selected != nil || !sel.EntryEnabled {
		t.Errorf("Expected two batches and no auto-selection, got %+v", sel)
	}

	w = httptest.NewRecorder()
	h.ListBatches(w, httptest.NewRequest("GET", "/", nil), itoa(empty))
	testutil.DecodeEnvelope(t, w, &sel)
	if len(sel.Batches) != 0 || sel.EntryEnabled {
		t.Errorf("Expected entry disabled without stock, got %+v", sel)
	}

	w = httptest.NewRecorder()
	h.ListBatches(w, httptest.NewRequest("GET", "/", nil), "999")
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = httptest.NewRecorder()
	h.ListBatches(w, httptest.NewRequest("GET", "/", nil), "x")
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestLastSaleEmpty(t *testing.T) {
	h, _ := setup(t)
	w := httptest.NewRecorder()
	h.LastSale(w, as(httptest.NewRequest("GET", "/", nil), "till1", "cashier"))
	testutil.AssertStatus(t, w, http.StatusOK)
	var st pos.LastSaleStatus
	testutil.DecodeEnvelope(t, w, &st)
	if st.Sale != nil || st.CanUndo || st.LimitMinutes != 10 {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestUndoLogAdminScope(t *testing.T) {
	h, db := setup(t)
	pid := testutil.SeedProduct(t, db, "Charger")
	bid := testutil.SeedBatch(t, db, pid, 5, "20.00", time.Now())
	for _, user := range []string{"till1", "till2"} {
		w := httptest.NewRecorder()
		h.CommitSale(w, as(testutil.AuthedJSONRequest("POST", "/", commitBody(pid, bid, 1, "0", "20", map[string]interface{}{"walk_in": true}), ""), user, "cashier"))
		var sale models.Sale
		testutil.DecodeEnvelope(t, w, &sale)
		w = httptest.NewRecorder()
		h.ReverseSale(w, as(testutil.AuthedJSONRequest("POST", "/", map[string]string{"reason_code": "pricing_error"}, ""), user, "cashier"), sale.InvoiceNumber)
		testutil.AssertStatus(t, w, http.StatusOK)
	}

	count := func(req *http.Request) int {
		w := httptest.NewRecorder()
		h.UndoLog(w, req)
		var entries []models.UndoLogEntry
		testutil.DecodeEnvelope(t, w, &entries)
		return len(entries)
	}
	if n := count(as(httptest.NewRequest("GET", "/?user=*", nil), "till1", "cashier")); n != 1 {
		t.Errorf("Cashier should only see their own entries, got %d", n)
	}
	if n := count(as(httptest.NewRequest("GET", "/?user=*", nil), "admin", "admin")); n != 2 {
		t.Errorf("Admin with user=* should see all entries, got %d", n)
	}
	if n := count(as(httptest.NewRequest("GET", "/?user=till2", nil), "admin", "admin")); n != 1 {
		t.Errorf("Admin with user=till2 should see one entry, got %d", n)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
