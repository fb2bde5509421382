package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims exposes the verified token claims
type AuthClaims interface {
	Subject() string
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims binds only the principal identifier. Profile data is never
// embedded, it is fetched from the store when needed.
type JWTClaims struct {
	jwt.RegisteredClaims
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
