package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"possale/internal/auth"
	"possale/internal/models"
	"possale/internal/store"
)

// AdminPassword is the password of the admin user every test DB starts with.
const AdminPassword = "changeme"

// TestPhone is a valid US number for customer tests.
const TestPhone = "+16502530000"

// SetupTestDB creates an in-memory SQLite database with the full schema and
// an admin user. A single connection keeps every query on the same memory
// database.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	testDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	testDB.SetMaxOpenConns(1)
	t.Cleanup(func() { testDB.Close() })

	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := store.Migrate(testDB); err != nil {
		t.Fatalf("Failed to migrate test DB: %v", err)
	}
	CreateTestUser(t, testDB, "admin", AdminPassword, "admin", true)
	return testDB
}

// CreateTestUser creates a user with the given credentials. The hash uses
// the minimum bcrypt cost to keep tests fast.
func CreateTestUser(t *testing.T, db *sql.DB, username, password, role string, active bool) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	activeInt := 0
	if active {
		activeInt = 1
	}
	result, err := db.Exec(
		"INSERT INTO users (username, password_hash, display_name, role, active) VALUES (?, ?, ?, ?, ?)",
		username, string(hash), username+" Display", role, activeInt,
	)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

// CreateTestSession creates a session token for the given user with the
// default expiry.
func CreateTestSession(t *testing.T, db *sql.DB, userID int64) string {
	t.Helper()
	token := auth.GenerateToken()
	expiresAt := time.Now().UTC().Add(auth.SessionTTL)
	_, err := db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expiresAt.Format("2006-01-02 15:04:05"))
	if err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return token
}

// LoginAdmin returns a session token for the default admin user.
func LoginAdmin(t *testing.T, db *sql.DB) string {
	t.Helper()
	var adminID int64
	if err := db.QueryRow("SELECT id FROM users WHERE username = 'admin'").Scan(&adminID); err != nil {
		t.Fatalf("Failed to find admin user: %v", err)
	}
	return CreateTestSession(t, db, adminID)
}

// LoginAs creates a user with role and returns their session token.
func LoginAs(t *testing.T, db *sql.DB, username, role string) string {
	t.Helper()
	userID := CreateTestUser(t, db, username, "password", role, true)
	return CreateTestSession(t, db, userID)
}

// SeedProduct inserts a product and returns its id.
func SeedProduct(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO products (name, category) VALUES (?, 'test')", name)
	if err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// SeedBatch inserts a batch with qty units at price and returns its id.
func SeedBatch(t *testing.T, db *sql.DB, productID int64, qty int, price string, intake time.Time) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO stock_batches
		(product_id, intake_date, unit_cost, unit_price, warranty_months, total_quantity, remaining_quantity)
		VALUES (?, ?, '1.00', ?, 12, ?, ?)`,
		productID, intake.UTC().Format(store.TimeLayout), price, qty, qty)
	if err != nil {
		t.Fatalf("Failed to seed batch: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

// Remaining reads a batch's remaining quantity.
func Remaining(t *testing.T, db *sql.DB, batchID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT remaining_quantity FROM stock_batches WHERE id = ?", batchID).Scan(&n); err != nil {
		t.Fatalf("Failed to read batch %d: %v", batchID, err)
	}
	return n
}

// AuthedRequest creates an HTTP request carrying the session cookie.
func AuthedRequest(method, path string, body []byte, sessionToken string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: sessionToken})
	}
	return req
}

// AuthedJSONRequest creates an authenticated HTTP request with a JSON body.
func AuthedJSONRequest(method, path string, body interface{}, sessionToken string) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := AuthedRequest(method, path, bodyBytes, sessionToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertStatus checks that the HTTP status code matches expected.
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Fatalf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// DecodeEnvelope decodes an API response envelope and extracts the data.
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode API envelope: %v", err)
	}
	dataBytes, _ := json.Marshal(resp.Data)
	if err := json.Unmarshal(dataBytes, v); err != nil {
		t.Fatalf("Failed to decode data from envelope: %v", err)
	}
}

// DecodeError decodes an error body.
func DecodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}
