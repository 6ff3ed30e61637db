package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator scopes
const (
	ScopeRead  = "indexing:read"
	ScopeWrite = "indexing:write"
)

// Claims represents operator token claims
type Claims struct {
	Operator string `json:"operator"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// CanWrite reports whether the token may trigger indexing
func (c *Claims) CanWrite() bool {
	return c.Scope == ScopeWrite
}

// TokenManager issues and validates operator tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue generates a token for an operator
func (m *TokenManager) Issue(operator, scope string) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("JWT secret not initialized")
	}
	if scope != ScopeRead && scope != ScopeWrite {
		return "", fmt.Errorf("unknown scope %q", scope)
	}

	now := time.Now()
	claims := Claims{
		Operator: operator,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates a token and returns its claims
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, fmt.Errorf("JWT secret not initialized")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
