package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-fitauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokensIssueStoresOnlyHash(t *testing.T) {
	db := setupTestDB(t)
	clock := newTestClock()
	repo := auth.NewRefreshTokensRepository(db, auth.WithRefreshTokensClock(clock.Now))
	ctx := context.Background()

	raw, record, err := repo.Issue(ctx, "alice", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, auth.HashRefreshToken(raw), record.TokenHash)
	assert.NotEqual(t, raw, record.TokenHash)

	var stored []auth.RefreshToken
	require.NoError(t, db.NewSelect().Model(&stored).Scan(ctx))
	require.Len(t, stored, 1)
	assert.NotEqual(t, raw, stored[0].TokenHash)
	assert.Equal(t, "alice", stored[0].PrincipalID)
}

func TestRefreshTokensConsumeOnce(t *testing.T) {
	db := setupTestDB(t)
	clock := newTestClock()
	repo := auth.NewRefreshTokensRepository(db, auth.WithRefreshTokensClock(clock.Now))
	ctx := context.Background()

	raw, _, err := repo.Issue(ctx, "alice", time.Hour)
	require.NoError(t, err)

	record, err := repo.Consume(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", record.PrincipalID)
	assert.True(t, record.Revoked())

	assert.True(t, record.Consumed())

	record, err = repo.Consume(ctx, raw)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenReused))
	require.NotNil(t, record)
	assert.Equal(t, "alice", record.PrincipalID)
}

func TestRefreshTokensConsumeRejectsUnknownAndExpired(t *testing.T) {
	db := setupTestDB(t)
	clock := newTestClock()
	repo := auth.NewRefreshTokensRepository(db, auth.WithRefreshTokensClock(clock.Now))
	ctx := context.Background()

	_, err := repo.Consume(ctx, "unknown")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenInvalid))

	_, err = repo.Consume(ctx, "")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenInvalid))

	raw, _, err := repo.Issue(ctx, "alice", time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	_, err = repo.Consume(ctx, raw)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenInvalid))
}

func TestRefreshTokensRevokeAll(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewRefreshTokensRepository(db)
	ctx := context.Background()

	first, _, err := repo.Issue(ctx, "alice", time.Hour)
	require.NoError(t, err)
	second, _, err := repo.Issue(ctx, "alice", time.Hour)
	require.NoError(t, err)
	bobs, _, err := repo.Issue(ctx, "bob", time.Hour)
	require.NoError(t, err)

	n, err := repo.RevokeAllForPrincipal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, raw := range []string{first, second} {
		_, err = repo.Consume(ctx, raw)
		assert.True(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenReused))
	}

	_, err = repo.Consume(ctx, bobs)
	assert.NoError(t, err)
}

func TestRefreshTokensRevokeIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewRefreshTokensRepository(db)
	ctx := context.Background()

	raw, _, err := repo.Issue(ctx, "alice", time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.Revoke(ctx, raw))
	require.NoError(t, repo.Revoke(ctx, raw))
	require.NoError(t, repo.Revoke(ctx, "unknown"))
	require.NoError(t, repo.Revoke(ctx, ""))

	record, err := repo.Consume(ctx, raw)
	require.Error(t, err)
	assert.Nil(t, record)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenInvalid))
	assert.False(t, auth.HasTextCode(err, auth.TextCodeRefreshTokenReused))
}
