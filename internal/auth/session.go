package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

// SessionCookie is the name of the login cookie.
const SessionCookie = "pos_session"

// SessionTTL is how long a session lives after its last use.
const SessionTTL = 24 * time.Hour

var ErrNoSession = errors.New("no valid session")

// Identity is who is calling, as far as the counter cares.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// GenerateToken returns 32 random bytes, hex encoded.
func GenerateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// CreateSession opens a session for userID and returns its token.
func CreateSession(ctx context.Context, db *sql.DB, userID int64) (string, time.Time, error) {
	token := GenerateToken()
	expires := time.Now().UTC().Add(SessionTTL)
	_, err := db.ExecContext(ctx, "INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
		token, userID, expires.Format(timeLayout))
	if err != nil {
		return "", time.Time{}, err
	}
	db.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", time.Now().UTC().Format(timeLayout), userID)
	return token, expires, nil
}

// LookupSession resolves a session token to an active user and slides its
// expiry forward.
func LookupSession(ctx context.Context, db *sql.DB, token string) (Identity, error) {
	var id Identity
	var active int
	now := time.Now().UTC()
	err := db.QueryRowContext(ctx, `SELECT u.id, u.username, u.role, u.active FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?`, token, now.Format(timeLayout)).
		Scan(&id.UserID, &id.Username, &id.Role, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, err
	}
	if active == 0 {
		return Identity{}, ErrAccountInactive
	}
	db.ExecContext(ctx, "UPDATE sessions SET expires_at = ? WHERE token = ?",
		now.Add(SessionTTL).Format(timeLayout), token)
	return id, nil
}

func DeleteSession(ctx context.Context, db *sql.DB, token string) error {
	_, err := db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}
