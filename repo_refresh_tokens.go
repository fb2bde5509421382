package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// refreshTokenBytes of entropy in every refresh token
const refreshTokenBytes = 32

// RefreshTokens stores hashed refresh tokens and enforces single use
type RefreshTokens interface {
	Issue(ctx context.Context, principalID string, ttl time.Duration) (string, *RefreshToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, principalID string, ttl time.Duration) (string, *RefreshToken, error)
	Consume(ctx context.Context, raw string) (*RefreshToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, raw string) (*RefreshToken, error)
	Revoke(ctx context.Context, raw string) error
	RevokeAllForPrincipal(ctx context.Context, principalID string) (int64, error)
	RevokeAllForPrincipalTx(ctx context.Context, tx bun.IDB, principalID string) (int64, error)
	DeleteForPrincipalTx(ctx context.Context, tx bun.IDB, principalID string) error
}

type refreshTokens struct {
	db  *bun.DB
	now func() time.Time
}

var _ RefreshTokens = (*refreshTokens)(nil)

// RefreshTokensOption configures the refresh token repository
type RefreshTokensOption func(*refreshTokens)

// WithRefreshTokensClock sets the clock used for expiry and revocation
func WithRefreshTokensClock(now func() time.Time) RefreshTokensOption {
	return func(r *refreshTokens) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRefreshTokensRepository(db *bun.DB, opts ...RefreshTokensOption) RefreshTokens {
	repo := &refreshTokens{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

// HashRefreshToken returns the stored form of a raw refresh token
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newRefreshTokenValue() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (r *refreshTokens) Issue(ctx context.Context, principalID string, ttl time.Duration) (string, *RefreshToken, error) {
	return r.IssueTx(ctx, r.db, principalID, ttl)
}

// IssueTx mints a new refresh token. The raw value is returned once and
// never stored.
func (r *refreshTokens) IssueTx(ctx context.Context, tx bun.IDB, principalID string, ttl time.Duration) (string, *RefreshToken, error) {
	raw, err := newRefreshTokenValue()
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}

	now := r.now().UTC()
	record := &RefreshToken{
		ID:          uuid.New(),
		TokenHash:   HashRefreshToken(raw),
		PrincipalID: principalID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to store refresh token")
	}

	return raw, record, nil
}

func (r *refreshTokens) Consume(ctx context.Context, raw string) (*RefreshToken, error) {
	return r.ConsumeTx(ctx, r.db, raw)
}

// ConsumeTx marks the token as used. Only one caller can ever consume a
// given token: the update is conditioned on revoked_at being NULL and must
// affect exactly one row. Presenting a consumed token returns the record
// along with ErrRefreshTokenReused so the caller can revoke the principal's
// family. A token revoked by logout or a password change is just invalid.
func (r *refreshTokens) ConsumeTx(ctx context.Context, tx bun.IDB, raw string) (*RefreshToken, error) {
	if raw == "" {
		return nil, ErrRefreshTokenInvalid
	}

	record, err := r.findByHash(ctx, tx, HashRefreshToken(raw))
	if err != nil {
		return nil, err
	}

	if record.Consumed() {
		return record, ErrRefreshTokenReused
	}

	if record.Revoked() {
		return nil, ErrRefreshTokenInvalid
	}

	now := r.now().UTC()
	if record.Expired(now) {
		return nil, ErrRefreshTokenInvalid
	}

	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", now).
		Set("consumed_at = ?", now).
		Where("id = ?", record.ID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to read affected rows")
	}

	if n != 1 {
		// lost the race, find out whether to a rotation or to a revoke
		current, err := r.findByHash(ctx, tx, record.TokenHash)
		if err != nil {
			return nil, err
		}
		if current.Consumed() {
			return current, ErrRefreshTokenReused
		}
		return nil, ErrRefreshTokenInvalid
	}

	record.RevokedAt = &now
	record.ConsumedAt = &now
	return record, nil
}

func (r *refreshTokens) findByHash(ctx context.Context, tx bun.IDB, hash string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to fetch refresh token")
	}
	return record, nil
}

// Revoke marks a single token as revoked. Unknown or already revoked
// tokens are not an error.
func (r *refreshTokens) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	_, err := r.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", r.now().UTC()).
		Where("token_hash = ?", HashRefreshToken(raw)).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh token")
	}
	return nil
}

func (r *refreshTokens) RevokeAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	return r.RevokeAllForPrincipalTx(ctx, r.db, principalID)
}

func (r *refreshTokens) RevokeAllForPrincipalTx(ctx context.Context, tx bun.IDB, principalID string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked_at = ?", r.now().UTC()).
		Where("principal_id = ?", principalID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh tokens")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to read affected rows")
	}
	return n, nil
}

func (r *refreshTokens) DeleteForPrincipalTx(ctx context.Context, tx bun.IDB, principalID string) error {
	_, err := tx.NewDelete().
		Model((*RefreshToken)(nil)).
		Where("principal_id = ?", principalID).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete refresh tokens")
	}
	return nil
}
