package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StreamClaims authorizes one websocket connection to the event stream.
type StreamClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// StreamTokens issues and checks short-lived stream tokens. Browsers cannot
// set headers on a websocket upgrade, so the token travels in the query.
type StreamTokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func (s *StreamTokens) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue signs a token for id.
func (s *StreamTokens) Issue(id Identity) (string, time.Time, error) {
	if len(s.Secret) == 0 {
		return "", time.Time{}, errors.New("stream token secret is not configured")
	}
	now := s.now()
	expires := now.Add(s.TTL)
	claims := &StreamClaims{
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	return signed, expires, err
}

// Parse validates a token and returns the identity it was issued to.
func (s *StreamTokens) Parse(tokenString string) (Identity, error) {
	claims := &StreamClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	return Identity{UserID: userID, Username: claims.Username, Role: claims.Role}, nil
}
