package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account deactivated")
)

// ValidatePasswordStrength requires 12+ characters from at least 3 classes.
func ValidatePasswordStrength(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	classes := 0
	for _, ok := range []bool{upper, lower, digit, special} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return errors.New("password must contain at least 3 of: uppercase, lowercase, numbers, special characters")
	}
	return nil
}

// CreateUser adds a counter user with a bcrypt password hash.
func CreateUser(ctx context.Context, db *sql.DB, username, password, displayName, role string) (int64, error) {
	if !ValidRole(role) {
		return 0, fmt.Errorf("unknown role %q", role)
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return 0, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		username, string(hash), displayName, role)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// CheckPassword verifies username/password and returns the user's identity.
// Failed attempts count toward the lockout.
func CheckPassword(ctx context.Context, db *sql.DB, username, password string) (Identity, error) {
	locked, err := IsAccountLocked(ctx, db, username)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Identity{}, err
	}
	if locked {
		return Identity{}, ErrAccountLocked
	}

	var id Identity
	var hash string
	var active int
	err = db.QueryRowContext(ctx, "SELECT id, username, role, password_hash, active FROM users WHERE username = ?", username).
		Scan(&id.UserID, &id.Username, &id.Role, &hash, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		if err := IncrementFailedLoginAttempts(ctx, db, username); err != nil {
			return Identity{}, fmt.Errorf("record failed login: %w", err)
		}
		return Identity{}, ErrInvalidCredentials
	}
	if active == 0 {
		return Identity{}, ErrAccountInactive
	}
	if err := ResetFailedLoginAttempts(ctx, db, username); err != nil {
		return Identity{}, fmt.Errorf("reset failed logins: %w", err)
	}
	return id, nil
}
