package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// VerifyStatus tags the outcome of a token verification
type VerifyStatus int

const (
	VerifyValid VerifyStatus = iota
	VerifyExpired
	VerifyMalformed
	VerifyBadSignature
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyValid:
		return "valid"
	case VerifyExpired:
		return "expired"
	case VerifyMalformed:
		return "malformed"
	case VerifyBadSignature:
		return "bad_signature"
	default:
		return fmt.Sprintf("VerifyStatus(%d)", int(s))
	}
}

// Verification is the result of verifying a raw token. PrincipalID and
// Claims are only set when Status is VerifyValid; Err is set otherwise.
type Verification struct {
	Status      VerifyStatus
	PrincipalID string
	Claims      *JWTClaims
	Err         error
}

// Valid reports whether the token was accepted
func (v Verification) Valid() bool {
	return v.Status == VerifyValid
}

// TokenVerifier is what the session middleware depends on
type TokenVerifier interface {
	Verify(raw string) Verification
}

// TokenVerifierFunc adapts a function to TokenVerifier
type TokenVerifierFunc func(raw string) Verification

// Verify calls f(raw)
func (f TokenVerifierFunc) Verify(raw string) Verification {
	return f(raw)
}

var _ TokenVerifier = (*TokenService)(nil)

// Verify checks the signature first, then expiry with no leeway. The
// result depends only on the token and the service clock.
func (ts *TokenService) Verify(raw string) Verification {
	if raw == "" {
		return malformed(ErrTokenMalformed, nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	claims := &JWTClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return malformed(ErrTokenMalformed, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			ts.logger.Debug("token signature rejected", "error", err)
			return Verification{Status: VerifyBadSignature, Err: wrapTokenErr(ErrTokenMalformed, err)}
		case errors.Is(err, jwt.ErrTokenExpired):
			return Verification{Status: VerifyExpired, Err: wrapTokenErr(ErrTokenExpired, err)}
		default:
			return malformed(ErrTokenMalformed, err)
		}
	}

	if claims.Subject() == "" {
		return malformed(ErrTokenMalformed, nil)
	}

	return Verification{
		Status:      VerifyValid,
		PrincipalID: claims.Subject(),
		Claims:      claims,
	}
}

func malformed(base *errors.Error, cause error) Verification {
	return Verification{Status: VerifyMalformed, Err: wrapTokenErr(base, cause)}
}

func wrapTokenErr(base *errors.Error, cause error) error {
	clone := base.Clone()
	if cause != nil {
		clone.Source = cause
		clone.WithMetadata(map[string]any{"reason": cause.Error()})
	}
	return clone
}
