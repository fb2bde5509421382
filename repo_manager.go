package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Principals() Principals
	RefreshTokens() RefreshTokens
}

type mngr struct {
	db            *bun.DB
	principals    Principals
	refreshTokens RefreshTokens
}

// RepositoryOption configures the repository manager
type RepositoryOption func(*mngr)

// WithPrincipals overrides the principals repository
func WithPrincipals(repo Principals) RepositoryOption {
	return func(m *mngr) {
		m.principals = repo
	}
}

// WithRefreshTokens overrides the refresh token repository
func WithRefreshTokens(repo RefreshTokens) RepositoryOption {
	return func(m *mngr) {
		m.refreshTokens = repo
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryOption) RepositoryManager {
	m := &mngr{
		db:            db,
		principals:    NewPrincipalsRepository(db),
		refreshTokens: NewRefreshTokensRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.principals == nil {
		return errors.New("repository principals should be initialized")
	}

	if m.refreshTokens == nil {
		return errors.New("repository refreshTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Principals() Principals {
	return m.principals
}

func (m mngr) RefreshTokens() RefreshTokens {
	return m.refreshTokens
}
