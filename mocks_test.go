package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-fitauth"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// testConfig implements auth.Config
type testConfig struct {
	signingKey string
	tokenTTL   time.Duration
	refreshTTL time.Duration
	issuer     string
	cost       int
}

func (c *testConfig) GetSigningKey() string { return c.signingKey }
func (c *testConfig) GetTokenTTL() time.Duration { return c.tokenTTL }
func (c *testConfig) GetRefreshTokenTTL() time.Duration { return c.refreshTTL }
func (c *testConfig) GetIssuer() string { return c.issuer }
func (c *testConfig) GetHashCost() int { return c.cost }
func (c *testConfig) GetContextKey() string { return "session" }
func (c *testConfig) GetAuthScheme() string { return "Bearer" }

// MockPasswordHasher implements auth.PasswordAuthenticator
type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	args := m.Called(ctx, password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(ctx context.Context, password, digest string) (bool, error) {
	args := m.Called(ctx, password, digest)
	return args.Bool(0), args.Error(1)
}

func (m *MockPasswordHasher) DummyVerify(ctx context.Context, password string) {
	m.Called(ctx, password)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := auth.OpenDB(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, auth.CreateSchema(ctx, db))
	return db
}

type authFixture struct {
	auther *auth.Auther
	repos  auth.RepositoryManager
	tokens *auth.TokenService
	clock  *testClock
	sink   *recordingSink
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	clock := newTestClock()
	db := setupTestDB(t)
	repos := auth.NewRepositoryManager(db,
		auth.WithPrincipals(auth.NewPrincipalsRepository(db, auth.WithPrincipalsClock(clock.Now))),
		auth.WithRefreshTokens(auth.NewRefreshTokensRepository(db, auth.WithRefreshTokensClock(clock.Now))),
	)
	repos.MustValidate()

	tokens := newTestTokenService(t, clock)
	sink := &recordingSink{}
	cfg := &testConfig{signingKey: string(testSigningKey), tokenTTL: time.Hour, refreshTTL: 24 * time.Hour}

	auther := auth.NewAuthenticator(repos, newTestHasher(t), tokens, cfg).
		WithLogger(auth.NoopLogger()).
		WithActivitySink(sink)

	return &authFixture{
		auther: auther,
		repos:  repos,
		tokens: tokens,
		clock:  clock,
		sink:   sink,
	}
}
