package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var UpdatePrincipalDigestSQL = `UPDATE "principals" AS "prn"
SET
	"password_digest" = ?,
	"updated_at" = ?
WHERE
	"prn"."identifier" = ?
RETURNING *;`

var DeletePrincipalSQL = `DELETE FROM "principals"
WHERE
	"identifier" = ?
RETURNING *;`

// Principals is the credential store
type Principals interface {
	Create(ctx context.Context, record *Principal, criteria ...repository.InsertCriteria) (*Principal, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Principal, criteria ...repository.InsertCriteria) (*Principal, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Principal, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Principal, error)
	UpdateDigest(ctx context.Context, identifier, digest string) error
	UpdateDigestTx(ctx context.Context, tx bun.IDB, identifier, digest string) error
	Delete(ctx context.Context, identifier string) error
	DeleteTx(ctx context.Context, tx bun.IDB, identifier string) error
}

type principals struct {
	repository.Repository[*Principal]
	db  *bun.DB
	now func() time.Time
}

var _ Principals = (*principals)(nil)

// PrincipalsOption configures the principals repository
type PrincipalsOption func(*principals)

// WithPrincipalsClock sets the clock used for timestamps
func WithPrincipalsClock(now func() time.Time) PrincipalsOption {
	return func(p *principals) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPrincipalsRepository(db *bun.DB, opts ...PrincipalsOption) Principals {
	repo := repository.NewRepository[*Principal](db, repository.ModelHandlers[*Principal]{
		NewRecord: func() *Principal { return &Principal{} },
		GetID: func(p *Principal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Principal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "identifier"
		},
	})

	repoPrincipals := &principals{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoPrincipals)
		}
	}
	return repoPrincipals
}

func (a *principals) Create(ctx context.Context, record *Principal, criteria ...repository.InsertCriteria) (*Principal, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx inserts a new principal. The id is derived from the identifier
// so the same identifier always maps to the same uuid.
func (a *principals) CreateTx(ctx context.Context, tx bun.IDB, record *Principal, criteria ...repository.InsertCriteria) (*Principal, error) {
	if record == nil || record.Identifier == "" {
		return nil, errors.New("principal identifier is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}

	id, err := hashid.NewUUID(record.Identifier)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive principal id")
	}

	now := a.now().UTC()
	record.ID = id
	record.CreatedAt = now
	record.UpdatedAt = now

	created, err := a.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrIdentifierTaken.Clone().WithMetadata(map[string]any{
				"identifier": record.Identifier,
			})
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create principal")
	}

	return created, nil
}

func (a *principals) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Principal, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *principals) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Principal, error) {
	record, err := a.Repository.GetByIdentifierTx(ctx, tx, identifier, criteria...)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, principalNotFound(identifier)
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to fetch principal")
	}

	return record, nil
}

func (a *principals) UpdateDigest(ctx context.Context, identifier, digest string) error {
	return a.UpdateDigestTx(ctx, a.db, identifier, digest)
}

func (a *principals) UpdateDigestTx(ctx context.Context, tx bun.IDB, identifier, digest string) error {
	res, err := a.Repository.RawTx(ctx, tx, UpdatePrincipalDigestSQL, digest, a.now().UTC(), identifier)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to update password digest")
	}

	if len(res) == 0 {
		return principalNotFound(identifier)
	}
	return nil
}

func (a *principals) Delete(ctx context.Context, identifier string) error {
	return a.DeleteTx(ctx, a.db, identifier)
}

func (a *principals) DeleteTx(ctx context.Context, tx bun.IDB, identifier string) error {
	res, err := a.Repository.RawTx(ctx, tx, DeletePrincipalSQL, identifier)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete principal")
	}

	if len(res) == 0 {
		return principalNotFound(identifier)
	}
	return nil
}

func principalNotFound(identifier string) error {
	return ErrIdentityNotFound.Clone().WithMetadata(map[string]any{
		"identifier": identifier,
	})
}
