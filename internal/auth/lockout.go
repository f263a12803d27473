package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	MaxFailedLoginAttempts = 10
	AccountLockoutDuration = 15 * time.Minute
)

const timeLayout = "2006-01-02 15:04:05"

// IncrementFailedLoginAttempts bumps the counter and locks the account once
// it reaches MaxFailedLoginAttempts.
func IncrementFailedLoginAttempts(ctx context.Context, db *sql.DB, username string) error {
	until := time.Now().UTC().Add(AccountLockoutDuration).Format(timeLayout)
	_, err := db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= ? THEN ?
		        ELSE locked_until
		    END
		WHERE username = ?`, MaxFailedLoginAttempts, until, username)
	return err
}

func ResetFailedLoginAttempts(ctx context.Context, db *sql.DB, username string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL
		WHERE username = ?`, username)
	return err
}

// IsAccountLocked reports whether username is inside a lockout period.
// An expired lockout is cleared.
func IsAccountLocked(ctx context.Context, db *sql.DB, username string) (bool, error) {
	var lockedUntil sql.NullString
	err := db.QueryRowContext(ctx, "SELECT locked_until FROM users WHERE username = ?", username).Scan(&lockedUntil)
	if err != nil {
		return false, err
	}
	if !lockedUntil.Valid {
		return false, nil
	}
	until, err := time.Parse(timeLayout, lockedUntil.String)
	if err != nil {
		return false, nil
	}
	if time.Now().UTC().Before(until) {
		return true, nil
	}
	if err := ResetFailedLoginAttempts(ctx, db, username); err != nil {
		return false, fmt.Errorf("clear expired lockout: %w", err)
	}
	return false, nil
}
