package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"possale/internal/auth"
	"possale/internal/testutil"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"short1A!", false},
		{"alllowercaseletters", false},
		{"lowercase12345", false},
		{"Lowercase12345", true},
		{"lowercase-1234", true},
		{"UPPER lower !!", true},
	}
	for _, tt := range tests {
		err := auth.ValidatePasswordStrength(tt.password)
		if (err == nil) != tt.ok {
			t.Errorf("ValidatePasswordStrength(%q) = %v, want ok=%v", tt.password, err, tt.ok)
		}
	}
}

func TestCreateUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	if _, err := auth.CreateUser(ctx, db, "till2", "Counter-Pass-2026", "Till 2", "cashier"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := auth.CreateUser(ctx, db, "till3", "weak", "Till 3", "cashier"); err == nil {
		t.Error("Expected weak password to be rejected")
	}
	if _, err := auth.CreateUser(ctx, db, "till4", "Counter-Pass-2026", "Till 4", "manager"); err == nil {
		t.Error("Expected unknown role to be rejected")
	}
	if _, err := auth.CreateUser(ctx, db, "till2", "Counter-Pass-2026", "Dup", "cashier"); err == nil {
		t.Error("Expected duplicate username to be rejected")
	}
}

func TestCheckPassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	testutil.CreateTestUser(t, db, "gone", "password", "cashier", false)

	id, err := auth.CheckPassword(ctx, db, "admin", testutil.AdminPassword)
	if err != nil {
		t.Fatalf("CheckPassword failed: %v", err)
	}
	if id.Username != "admin" || id.Role != "admin" || id.UserID == 0 {
		t.Errorf("Unexpected identity %+v", id)
	}

	if _, err := auth.CheckPassword(ctx, db, "admin", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.CheckPassword(ctx, db, "nobody", "x"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	if _, err := auth.CheckPassword(ctx, db, "gone", "password"); !errors.Is(err, auth.ErrAccountInactive) {
		t.Errorf("Expected ErrAccountInactive, got %v", err)
	}
}

func TestLockoutAfterFailedAttempts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	for i := 0; i < auth.MaxFailedLoginAttempts; i++ {
		auth.CheckPassword(ctx, db, "admin", "wrong")
	}
	locked, err := auth.IsAccountLocked(ctx, db, "admin")
	if err != nil || !locked {
		t.Fatalf("Expected account locked, got %v %v", locked, err)
	}
	if _, err := auth.CheckPassword(ctx, db, "admin", testutil.AdminPassword); !errors.Is(err, auth.ErrAccountLocked) {
		t.Errorf("Expected ErrAccountLocked with the right password, got %v", err)
	}

	// An expired lockout clears itself.
	past := time.Now().UTC().Add(-time.Minute).Format("2006-01-02 15:04:05")
	db.Exec("UPDATE users SET locked_until = ? WHERE username = 'admin'", past)
	if _, err := auth.CheckPassword(ctx, db, "admin", testutil.AdminPassword); err != nil {
		t.Errorf("Expected login after lockout expiry, got %v", err)
	}
	var attempts int
	db.QueryRow("SELECT failed_login_attempts FROM users WHERE username = 'admin'").Scan(&attempts)
	if attempts != 0 {
		t.Errorf("Expected counter reset, got %d", attempts)
	}
}

func TestLockoutWriteFailuresAreReturned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute).Format("2006-01-02 15:04:05")
	if _, err := db.Exec("UPDATE users SET locked_until = ? WHERE username = 'admin'", past); err != nil {
		t.Fatalf("set locked_until: %v", err)
	}
	if _, err := db.Exec(`CREATE TRIGGER users_readonly BEFORE UPDATE ON users
		BEGIN SELECT RAISE(ABORT, 'users table is read-only'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := auth.IsAccountLocked(ctx, db, "admin"); err == nil {
		t.Error("Expected an error when the expired lockout cannot be cleared")
	}
	if _, err := auth.CheckPassword(ctx, db, "admin", testutil.AdminPassword); err == nil {
		t.Error("Expected login to fail when the lockout cannot be cleared")
	}

	db.Exec("DROP TRIGGER users_readonly")
	db.Exec("UPDATE users SET locked_until = NULL WHERE username = 'admin'")
	db.Exec(`CREATE TRIGGER users_readonly BEFORE UPDATE ON users
		BEGIN SELECT RAISE(ABORT, 'users table is read-only'); END`)

	_, err := auth.CheckPassword(ctx, db, "admin", "wrong")
	if err == nil || errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("Expected the failed-attempt write error, got %v", err)
	}
	if _, err := auth.CheckPassword(ctx, db, "admin", testutil.AdminPassword); err == nil {
		t.Error("Expected the counter reset error on a good password")
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	uid := testutil.CreateTestUser(t, db, "till1", "password", "cashier", true)

	token, expires, err := auth.CreateSession(ctx, db, uid)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if len(token) != 64 || expires.Before(time.Now()) {
		t.Errorf("Unexpected token %q expiring %s", token, expires)
	}

	id, err := auth.LookupSession(ctx, db, token)
	if err != nil {
		t.Fatalf("LookupSession failed: %v", err)
	}
	if id.Username != "till1" || id.Role != "cashier" || id.UserID != uid {
		t.Errorf("Unexpected identity %+v", id)
	}

	if err := auth.DeleteSession(ctx, db, token); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := auth.LookupSession(ctx, db, token); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("Expected ErrNoSession after logout, got %v", err)
	}
}

func TestSessionRejectsExpiredAndInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	uid := testutil.CreateTestUser(t, db, "till1", "password", "cashier", true)

	expired := "expired-token"
	db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		expired, uid, time.Now().UTC().Add(-time.Hour).Format("2006-01-02 15:04:05"))
	if _, err := auth.LookupSession(ctx, db, expired); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("Expected ErrNoSession for expired session, got %v", err)
	}

	token := testutil.CreateTestSession(t, db, uid)
	db.Exec("UPDATE users SET active = 0 WHERE id = ?", uid)
	if _, err := auth.LookupSession(ctx, db, token); !errors.Is(err, auth.ErrAccountInactive) {
		t.Errorf("Expected ErrAccountInactive, got %v", err)
	}
}

func TestWithIdentity(t *testing.T) {
	if _, ok := auth.IdentityFrom(context.Background()); ok {
		t.Error("Expected no identity on a bare context")
	}
	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: 7, Username: "till1", Role: "cashier"})
	id, ok := auth.IdentityFrom(ctx)
	if !ok || id.UserID != 7 {
		t.Errorf("Unexpected identity %+v", id)
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		role     string
		valid    bool
		sell     bool
		settings bool
	}{
		{auth.RoleAdmin, true, true, true},
		{auth.RoleCashier, true, true, false},
		{auth.RoleViewer, true, false, false},
		{"manager", false, false, false},
	}
	for _, tt := range tests {
		if auth.ValidRole(tt.role) != tt.valid || auth.CanSell(tt.role) != tt.sell || auth.CanManageSettings(tt.role) != tt.settings {
			t.Errorf("Unexpected permissions for %q", tt.role)
		}
	}
}

func TestStreamTokens(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tokens := &auth.StreamTokens{Secret: []byte("0123456789abcdef"), TTL: time.Minute, Now: func() time.Time { return now }}
	who := auth.Identity{UserID: 3, Username: "till1", Role: "cashier"}

	signed, expires, err := tokens.Issue(who)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expires.Equal(now.Add(time.Minute)) {
		t.Errorf("Expected expiry %s, got %s", now.Add(time.Minute), expires)
	}

	got, err := tokens.Parse(signed)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got != who {
		t.Errorf("Parse = %+v, want %+v", got, who)
	}

	other := &auth.StreamTokens{Secret: []byte("another-secret-value"), TTL: time.Minute, Now: tokens.Now}
	if _, err := other.Parse(signed); err == nil {
		t.Error("Expected signature mismatch to fail")
	}

	later := &auth.StreamTokens{Secret: tokens.Secret, TTL: time.Minute, Now: func() time.Time { return now.Add(2 * time.Minute) }}
	if _, err := later.Parse(signed); err == nil {
		t.Error("Expected expired token to fail")
	}

	if _, _, err := (&auth.StreamTokens{TTL: time.Minute}).Issue(who); err == nil {
		t.Error("Expected error without a secret")
	}
	if _, err := tokens.Parse("not-a-token"); err == nil {
		t.Error("Expected garbage to fail")
	}
}
