package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// DefaultRefreshTokenTTL is the refresh token lifetime when none is configured
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

var _ Authenticator = (*Auther)(nil)

// Auther implements the credential lifecycle: register, login, refresh
// with rotation, logout, password change and principal removal.
type Auther struct {
	repos        RepositoryManager
	hasher       PasswordAuthenticator
	tokenService *TokenService
	refreshTTL   time.Duration
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repos RepositoryManager, hasher PasswordAuthenticator, tokenService *TokenService, opts Config) *Auther {
	refreshTTL := DefaultRefreshTokenTTL
	if opts != nil && opts.GetRefreshTokenTTL() > 0 {
		refreshTTL = opts.GetRefreshTokenTTL()
	}

	return &Auther{
		repos:        repos,
		hasher:       hasher,
		tokenService: tokenService,
		refreshTTL:   refreshTTL,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithRefreshTokenTTL overrides the refresh token lifetime
func (s *Auther) WithRefreshTokenTTL(ttl time.Duration) *Auther {
	if ttl > 0 {
		s.refreshTTL = ttl
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() *TokenService {
	return s.tokenService
}

// Register creates a principal and returns its first token pair
func (s *Auther) Register(ctx context.Context, identifier, password string) (*TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, errors.New("identifier is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}

	if _, err := s.repos.Principals().GetByIdentifier(ctx, identifier); err == nil {
		return nil, ErrIdentifierTaken
	} else if !HasTextCode(err, TextCodePrincipalNotFound) {
		return nil, err
	}

	digest, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		principal := &Principal{
			Identifier:     identifier,
			PasswordDigest: digest,
		}
		if _, err := s.repos.Principals().CreateTx(ctx, tx, principal); err != nil {
			return err
		}

		pair, err = s.issuePairTx(ctx, tx, identifier)
		return err
	})

	if err != nil {
		s.logger.Warn("Register failed", "identifier", identifier, "error", err)
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventRegistered, identifier, nil)

	return pair, nil
}

// Login verifies credentials. Unknown identifiers and wrong passwords
// produce the same error and cost the same work.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	identifier = strings.TrimSpace(identifier)

	principal, err := s.repos.Principals().GetByIdentifier(ctx, identifier)
	if err != nil {
		if !HasTextCode(err, TextCodePrincipalNotFound) {
			s.logger.Error("Login principal lookup error", "error", err)
			return nil, err
		}
		s.hasher.DummyVerify(ctx, password)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, "", map[string]any{
			"identifier": identifier,
			"reason":     "unknown_identifier",
		})
		return nil, ErrMismatchedHashAndPassword
	}

	ok, err := s.hasher.Verify(ctx, password, principal.PasswordDigest)
	if err != nil {
		s.logger.Error("Login password verification failure", "principal", identifier, "error", err)
		s.emitAuthEvent(ctx, ActivityEventCredentialFailure, identifier, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	if !ok {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, identifier, map[string]any{
			"reason": "wrong_password",
		})
		return nil, ErrMismatchedHashAndPassword
	}

	var pair *TokenPair
	err = s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pair, err = s.issuePairTx(ctx, tx, identifier)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, identifier, nil)

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed; presenting it again revokes every refresh token the principal
// holds.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrMissingCredential
	}

	var principalID string
	var pair *TokenPair
	err := s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.repos.RefreshTokens().ConsumeTx(ctx, tx, refreshToken)
		if record != nil {
			principalID = record.PrincipalID
		}
		if err != nil {
			return err
		}

		if _, err := s.repos.Principals().GetByIdentifierTx(ctx, tx, principalID); err != nil {
			if HasTextCode(err, TextCodePrincipalNotFound) {
				return ErrRefreshTokenInvalid
			}
			return err
		}

		pair, err = s.issuePairTx(ctx, tx, principalID)
		return err
	})

	if err != nil {
		if HasTextCode(err, TextCodeRefreshTokenReused) && principalID != "" {
			s.revokeFamily(ctx, principalID)
		}
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, principalID, nil)

	return pair, nil
}

func (s *Auther) revokeFamily(ctx context.Context, principalID string) {
	n, err := s.repos.RefreshTokens().RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		s.logger.Error("Refresh reuse revocation failed", "principal", principalID, "error", err)
		return
	}

	s.logger.Warn("Refresh token reuse detected", "principal", principalID, "revoked", n)
	s.emitAuthEvent(ctx, ActivityEventRefreshReuse, principalID, map[string]any{
		"revoked": n,
	})
}

// Logout revokes the given refresh token. Access tokens are stateless and
// stay valid until they expire.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	if err := s.repos.RefreshTokens().Revoke(ctx, refreshToken); err != nil {
		s.logger.Error("Logout revoke error", "error", err)
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, "", nil)
	return nil
}

// ChangePassword re-hashes the digest and revokes outstanding refresh
// tokens once the current password checks out.
func (s *Auther) ChangePassword(ctx context.Context, principalID, current, next string) error {
	principal, err := s.repos.Principals().GetByIdentifier(ctx, principalID)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, current, principal.PasswordDigest)
	if err != nil {
		s.logger.Error("ChangePassword verification failure", "principal", principalID, "error", err)
		return err
	}

	if !ok {
		return ErrMismatchedHashAndPassword
	}

	digest, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}

	err = s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repos.Principals().UpdateDigestTx(ctx, tx, principalID, digest); err != nil {
			return err
		}
		_, err := s.repos.RefreshTokens().RevokeAllForPrincipalTx(ctx, tx, principalID)
		return err
	})
	if err != nil {
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventPasswordChanged, principalID, nil)
	return nil
}

// Principal returns the stored principal
func (s *Auther) Principal(ctx context.Context, principalID string) (*Principal, error) {
	return s.repos.Principals().GetByIdentifier(ctx, principalID)
}

// DeletePrincipal removes the principal and all its refresh tokens
func (s *Auther) DeletePrincipal(ctx context.Context, principalID string) error {
	err := s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.repos.RefreshTokens().DeleteForPrincipalTx(ctx, tx, principalID); err != nil {
			return err
		}
		return s.repos.Principals().DeleteTx(ctx, tx, principalID)
	})
	if err != nil {
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventPrincipalDeleted, principalID, nil)
	return nil
}

// SessionFromToken verifies a raw access token and returns its session
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	v := s.tokenService.Verify(raw)
	if !v.Valid() {
		return nil, v.Err
	}
	return SessionFromVerification(v)
}

func (s *Auther) issuePairTx(ctx context.Context, tx bun.IDB, principalID string) (*TokenPair, error) {
	token, err := s.tokenService.Issue(principalID)
	if err != nil {
		return nil, err
	}

	raw, _, err := s.repos.RefreshTokens().IssueTx(ctx, tx, principalID, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		Token:        token.Value,
		RefreshToken: raw,
		PrincipalID:  principalID,
		ExpiresAt:    token.ExpiresAt,
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, principalID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:   eventType,
		PrincipalID: principalID,
		Metadata:    metadata,
		OccurredAt:  s.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}
