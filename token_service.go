package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the access token lifetime when none is configured
const DefaultTokenTTL = time.Hour

// Token is a signed access token and the times it was minted with
type Token struct {
	Value     string
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 access tokens with a single
// process wide secret. It holds no mutable state after construction.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	now        func() time.Time
	logger     Logger
}

// TokenOption configures a TokenService
type TokenOption func(*TokenService)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithIssuer sets the iss claim; verification then requires it
func WithIssuer(issuer string) TokenOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("token service: signing key must not be empty")
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	ts := &TokenService{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		opt(ts)
	}

	return ts, nil
}

// NewTokenServiceFromConfig builds the service from an auth Config
func NewTokenServiceFromConfig(cfg Config, opts ...TokenOption) (*TokenService, error) {
	opts = append([]TokenOption{WithIssuer(cfg.GetIssuer())}, opts...)
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetTokenTTL(), opts...)
}

// TTL returns the access token lifetime
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs {sub, iat, exp, jti} for the given principal
func (ts *TokenService) Issue(principalID string) (Token, error) {
	if principalID == "" {
		return Token{}, errors.New("principal id must not be empty", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}

	now := ts.now()
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(ts.ttl))

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   principalID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.signingKey)
	if err != nil {
		ts.logger.Error("token signing failed", "error", err)
		return Token{}, errors.Wrap(err, errors.CategoryInternal, ErrSigningFailure.Message).
			WithCode(errors.CodeInternal).
			WithTextCode(TextCodeSigningFailure)
	}

	return Token{
		Value:     signed,
		ID:        claims.ID,
		Subject:   principalID,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}
