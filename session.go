package auth

import (
	"fmt"
	"time"
)

var _ Session = &SessionObject{}

// SessionObject is the request scoped view of a verified token
type SessionObject struct {
	PrincipalID string    `json:"principal_id,omitempty"`
	TokenID     string    `json:"token_id,omitempty"`
	Issuer      string    `json:"issuer,omitempty"`
	IssuedAt    time.Time `json:"issued_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

func (s *SessionObject) GetPrincipalID() string {
	return s.PrincipalID
}

func (s *SessionObject) GetIssuedAt() time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiresAt() time.Time {
	return s.ExpiresAt
}

func (s SessionObject) String() string {
	return fmt.Sprintf(
		"principal=%s jti=%s iss=%s iat=%s exp=%s",
		s.PrincipalID,
		s.TokenID,
		s.Issuer,
		s.IssuedAt.Format(time.RFC1123),
		s.ExpiresAt.Format(time.RFC1123),
	)
}

// SessionFromVerification builds a session out of a valid verification
func SessionFromVerification(v Verification) (*SessionObject, error) {
	if v.Status != VerifyValid || v.Claims == nil {
		return nil, ErrUnableToFindSession
	}

	return &SessionObject{
		PrincipalID: v.PrincipalID,
		TokenID:     v.Claims.TokenID(),
		Issuer:      v.Claims.Issuer,
		IssuedAt:    v.Claims.IssuedAt(),
		ExpiresAt:   v.Claims.Expires(),
	}, nil
}
