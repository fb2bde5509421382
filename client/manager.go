package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	auth "github.com/goliatone/go-fitauth"
	"golang.org/x/sync/singleflight"
)

const (
	registerPath = "/auth/register"
	loginPath    = "/auth/login"
	refreshPath  = "/auth/refresh"
	logoutPath   = "/auth/logout"
	mePath       = "/me"
)

// reasons sent by the session middleware on a 401
const (
	reasonMissing = "missing"
	reasonExpired = "expired"
	reasonInvalid = "invalid"
)

const (
	DefaultRefreshTimeout = 10 * time.Second
	DefaultRequestTimeout = 10 * time.Second

	// a 401 body is only inspected for its reason, larger bodies are
	// passed through without being parsed
	maxReasonBody = 64 << 10
)

// Manager owns the client side credential state. It attaches the
// bearer token to requests sent through Client, refreshes expired
// tokens and retries the original request once.
type Manager struct {
	baseURL         *url.URL
	base            http.RoundTripper
	store           Store
	logger          auth.Logger
	refreshTimeout  time.Duration
	requestTimeout  time.Duration
	onLoginRequired func()

	mu         sync.Mutex
	creds      Credentials
	generation uint64

	flight singleflight.Group
}

var _ http.RoundTripper = (*Manager)(nil)

// Option configures a Manager
type Option func(*Manager)

// WithTransport sets the RoundTripper used for the actual requests
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		if rt != nil {
			m.base = rt
		}
	}
}

// WithStore sets where credentials are persisted
func WithStore(store Store) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRefreshTimeout bounds a refresh call. The refresh does not inherit
// the cancellation of the request that triggered it, siblings may be
// waiting on it.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.requestTimeout = d
		}
	}
}

// OnLoginRequired is called after credentials were cleared because they
// can no longer be used.
func OnLoginRequired(fn func()) Option {
	return func(m *Manager) {
		m.onLoginRequired = fn
	}
}

// New creates a manager for the API at baseURL and loads any stored
// credentials.
func New(baseURL string, opts ...Option) (*Manager, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", baseURL)
	}

	m := &Manager{
		baseURL:        u,
		base:           http.DefaultTransport,
		store:          NewMemoryStore(Credentials{}),
		logger:         auth.NoopLogger(),
		refreshTimeout: DefaultRefreshTimeout,
		requestTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	creds, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	m.creds = creds

	return m, nil
}

// Client returns an http.Client whose requests go through the manager
func (m *Manager) Client() *http.Client {
	return &http.Client{
		Transport: m,
		Timeout:   m.requestTimeout,
	}
}

// Credentials returns a snapshot of the current credentials
func (m *Manager) Credentials() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// LoggedIn reports whether the manager holds an access token
func (m *Manager) LoggedIn() bool {
	return m.Credentials().Token != ""
}

// Register creates an account and stores the returned credentials
func (m *Manager) Register(ctx context.Context, identifier, password string) (*auth.TokenPair, error) {
	return m.authenticate(ctx, registerPath, identifier, password)
}

// Login stores the returned credentials
func (m *Manager) Login(ctx context.Context, identifier, password string) (*auth.TokenPair, error) {
	return m.authenticate(ctx, loginPath, identifier, password)
}

func (m *Manager) authenticate(ctx context.Context, path, identifier, password string) (*auth.TokenPair, error) {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	pair, err := m.postPair(ctx, path, body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.creds = Credentials{Token: pair.Token, RefreshToken: pair.RefreshToken}
	if err := m.store.Save(m.creds); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	m.logger.Debug("credentials stored", "principal", pair.PrincipalID)
	return pair, nil
}

// Logout clears local state before telling the server. A refresh that
// completes after this call is discarded.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	refreshToken := m.creds.RefreshToken
	m.generation++
	m.creds = Credentials{}
	err := m.store.Clear()
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}

	if refreshToken != "" {
		m.revoke(ctx, refreshToken)
	}
	return nil
}

// Profile is the body of GET /me
type Profile struct {
	PrincipalID string    `json:"principalId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Me fetches the current principal through the authenticated client
func (m *Manager) Me(ctx context.Context) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint(mePath), nil)
	if err != nil {
		return nil, err
	}

	res, err := m.Client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, decodeAPIError(res)
	}

	profile := &Profile{}
	if err := json.NewDecoder(res.Body).Decode(profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return profile, nil
}

type retryKey struct{}

func isRetry(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// RoundTrip implements http.RoundTripper
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	owned := m.sameOrigin(req.URL)

	m.mu.Lock()
	sent, gen := m.creds, m.generation
	m.mu.Unlock()

	out := req.Clone(req.Context())
	if owned && sent.Token != "" {
		out.Header.Set("Authorization", "Bearer "+sent.Token)
	}

	res, err := m.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if !owned || res.StatusCode != http.StatusUnauthorized || isRetry(req.Context()) {
		return res, nil
	}

	reason := peekReason(res)

	switch reason {
	case reasonMissing, reasonInvalid:
		res.Body.Close()
		return nil, m.loginRequired(gen, fmt.Errorf("server rejected token: %s", reason))
	case reasonExpired:
	default:
		m.logger.Debug("unrecognized 401 reason, trying refresh", "reason", reason)
	}

	retry, ok := replayable(req)
	if !ok {
		m.logger.Debug("request body can not be replayed, returning 401", "url", req.URL.Redacted())
		return res, nil
	}
	res.Body.Close()

	if _, err := m.refresh(req.Context(), sent); err != nil {
		return nil, err
	}

	return m.RoundTrip(retry.WithContext(context.WithValue(req.Context(), retryKey{}, true)))
}

// refresh returns credentials newer than stale, running the refresh
// protocol at most once for concurrent callers holding the same
// refresh token.
func (m *Manager) refresh(ctx context.Context, stale Credentials) (Credentials, error) {
	m.mu.Lock()
	current := m.creds
	gen := m.generation
	m.mu.Unlock()

	if current.Token != "" && current.Token != stale.Token {
		return current, nil
	}

	if current.RefreshToken == "" {
		return Credentials{}, m.loginRequired(gen, fmt.Errorf("no refresh token"))
	}

	ch := m.flight.DoChan(current.RefreshToken, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
		defer cancel()
		return m.doRefresh(rctx, current.RefreshToken, gen)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return Credentials{}, r.Err
		}
		return r.Val.(Credentials), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string, gen uint64) (Credentials, error) {
	m.mu.Lock()
	if m.generation == gen && m.creds.Token != "" && m.creds.RefreshToken != refreshToken {
		current := m.creds
		m.mu.Unlock()
		return current, nil
	}
	m.mu.Unlock()

	m.logger.Debug("refreshing access token")

	pair, err := m.postPair(ctx, refreshPath, map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Credentials{}, m.loginRequired(gen, err)
	}

	next := Credentials{Token: pair.Token, RefreshToken: pair.RefreshToken}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Debug("discarding refreshed credentials, session ended while refreshing")
		m.revoke(ctx, next.RefreshToken)
		return Credentials{}, ErrLoggedOut
	}

	m.creds = next
	err = m.store.Save(next)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("failed to persist refreshed credentials", "error", err)
	}

	return next, nil
}

// loginRequired clears the credentials of generation gen. When the
// generation moved on the session was already ended by Logout or
// replaced by Login, and the rejection is stale.
func (m *Manager) loginRequired(gen uint64, cause error) error {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return ErrLoggedOut
	}

	m.generation++
	m.creds = Credentials{}
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear stored credentials", "error", err)
	}
	m.mu.Unlock()

	m.logger.Info("login required", "cause", cause)

	if m.onLoginRequired != nil {
		m.onLoginRequired()
	}

	return ErrLoginRequired
}

func (m *Manager) revoke(ctx context.Context, refreshToken string) {
	if err := m.post(ctx, logoutPath, map[string]string{"refreshToken": refreshToken}, nil); err != nil {
		m.logger.Warn("failed to revoke refresh token", "error", err)
	}
}

func (m *Manager) postPair(ctx context.Context, path string, body any) (*auth.TokenPair, error) {
	pair := &auth.TokenPair{}
	if err := m.post(ctx, path, body, pair); err != nil {
		return nil, err
	}

	if pair.Token == "" || pair.RefreshToken == "" {
		return nil, fmt.Errorf("%s: response without token pair", path)
	}

	return pair, nil
}

// post sends body as JSON bypassing the manager, the auth endpoints
// never carry the bearer token.
func (m *Manager) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hc := &http.Client{Transport: m.base, Timeout: m.requestTimeout}
	res, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeAPIError(res)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (m *Manager) endpoint(path string) string {
	return m.baseURL.String() + path
}

func (m *Manager) sameOrigin(u *url.URL) bool {
	return u != nil &&
		strings.EqualFold(u.Scheme, m.baseURL.Scheme) &&
		strings.EqualFold(u.Host, m.baseURL.Host)
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{Status: res.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(res.Body, maxReasonBody))
	_ = json.Unmarshal(data, apiErr)
	return apiErr
}

type readCloser struct {
	io.Reader
	io.Closer
}

// peekReason reads the reason of a 401 body and restores the body so
// the caller can still consume it.
func peekReason(res *http.Response) string {
	if res.Body == nil || res.Body == http.NoBody {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxReasonBody))
	res.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(buf), res.Body),
		Closer: res.Body,
	}
	if err != nil {
		return ""
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(buf, &body) != nil {
		return ""
	}
	return body.Reason
}

// replayable returns a copy of req with a fresh body, or false when the
// body can not be read again.
func replayable(req *http.Request) (*http.Request, bool) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, true
	}

	if req.GetBody == nil {
		return nil, false
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	clone.Body = body
	return clone, true
}
