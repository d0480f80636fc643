// Package auth issues and verifies the bearer tokens that tie each
// ingest request to a reporter identity. Identity comes from the
// verified session only, never from the request body.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Manager signs and verifies HS256 session tokens.
type Manager struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
}

type sessionClaims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// NewManager builds a token manager. ttl is used when Token is called
// with a zero duration.
func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth: secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), issuer: issuer, defaultTTL: ttl}, nil
}

// Token mints a signed session token carrying the given identity.
func (m *Manager) Token(identity string, ttl time.Duration) (string, error) {
	if identity == "" {
		return "", errors.New("auth: empty identity")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := time.Now()
	claims := sessionClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature, issuer, and expiry, and returns the identity
// the token was minted for.
func (m *Manager) Verify(tokenString string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Identity == "" {
		return "", ErrInvalidToken
	}
	return claims.Identity, nil
}
