package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Principal is an identity that can authenticate. The digest is the only
// form in which the password is ever kept.
type Principal struct {
	bun.BaseModel  `bun:"table:principals,alias:prn"`
	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Identifier     string    `bun:"identifier,notnull,unique" json:"principalId"`
	PasswordDigest string    `bun:"password_digest,notnull" json:"-"`
	CreatedAt      time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// RefreshToken is the server side record of an opaque refresh token. Only
// the sha256 of the value handed to the client is stored.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	PrincipalID   string     `bun:"principal_id,notnull" json:"principal_id"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Revoked reports whether the token can no longer be used, either because
// it was rotated or because it was revoked by logout or a password change
func (r *RefreshToken) Revoked() bool {
	return r.RevokedAt != nil
}

// Consumed reports whether the token was spent by a rotation. Presenting a
// consumed token again is reuse.
func (r *RefreshToken) Consumed() bool {
	return r.ConsumedAt != nil
}

// Expired reports whether the token is past its lifetime at now
func (r *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TokenPair is what register, login and refresh hand back to the client
type TokenPair struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	PrincipalID  string    `json:"principalId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}
