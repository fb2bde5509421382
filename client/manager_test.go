package client_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-fitauth/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "Str0ng!pass"

func newLoggedInManager(t *testing.T, api *fakeAPI, opts ...client.Option) (*client.Manager, *client.MemoryStore) {
	t.Helper()

	store := client.NewMemoryStore(client.Credentials{})
	opts = append([]client.Option{client.WithStore(store)}, opts...)

	m, err := client.New(api.URL(), opts...)
	require.NoError(t, err)

	_, err = m.Login(context.Background(), "runner_01", testPassword)
	require.NoError(t, err)

	return m, store
}

func TestNew_RejectsRelativeBaseURL(t *testing.T) {
	_, err := client.New("/api")
	assert.Error(t, err)
}

func TestNew_LoadsStoredCredentials(t *testing.T) {
	store := client.NewMemoryStore(client.Credentials{Token: "tok-9", RefreshToken: "rt-9"})

	m, err := client.New("http://fittrack.test", client.WithStore(store))
	require.NoError(t, err)

	assert.Equal(t, "tok-9", m.Credentials().Token)
	assert.True(t, m.LoggedIn())
}

func TestManager_LoginPersistsPair(t *testing.T) {
	api := newFakeAPI(t)
	m, store := newLoggedInManager(t, api)

	stored, err := store.Load()
	require.NoError(t, err)

	assert.Equal(t, client.Credentials{Token: "tok-1", RefreshToken: "rt-1"}, stored)
	assert.Equal(t, stored, m.Credentials())
}

func TestManager_LoginFailure(t *testing.T) {
	api := newFakeAPI(t)

	m, err := client.New(api.URL())
	require.NoError(t, err)

	_, err = m.Login(context.Background(), "runner_01", "wrong")
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	assert.False(t, m.LoggedIn())
}

func TestManager_AttachesBearerToken(t *testing.T) {
	api := newFakeAPI(t)
	m, _ := newLoggedInManager(t, api)

	profile, err := m.Me(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "runner_01", profile.PrincipalID)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestManager_DoesNotSendTokenToOtherHosts(t *testing.T) {
	api := newFakeAPI(t)
	m, _ := newLoggedInManager(t, api)

	var got atomic.Value
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer other.Close()

	res, err := m.Client().Get(other.URL)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, "", got.Load())
}

func TestManager_RefreshesExpiredTokenTransparently(t *testing.T) {
	api := newFakeAPI(t)
	m, store := newLoggedInManager(t, api)

	api.expire("tok-1")

	profile, err := m.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "runner_01", profile.PrincipalID)

	assert.Equal(t, int32(1), api.refreshCalls.Load())

	want := client.Credentials{Token: "tok-2", RefreshToken: "rt-2"}
	assert.Equal(t, want, m.Credentials())

	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

func TestManager_ReplaysRequestBodyOnRetry(t *testing.T) {
	api := newFakeAPI(t)
	m, _ := newLoggedInManager(t, api)

	api.expire("tok-1")

	req, err := http.NewRequest(http.MethodPost, api.URL()+"/echo", bytes.NewReader([]byte(`{"distance":5}`)))
	require.NoError(t, err)

	res, err := m.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `{"distance":5}`, string(body))
}

func TestManager_NonReplayableBodyIsNotRetried(t *testing.T) {
	api := newFakeAPI(t)
	m, _ := newLoggedInManager(t, api)

	api.expire("tok-1")

	req, err := http.NewRequest(http.MethodPost, api.URL()+"/echo", io.NopCloser(strings.NewReader("{}")))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)

	res, err := m.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Contains(t, string(body), `"reason":"expired"`)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestManager_RetriesAtMostOnce(t *testing.T) {
	api := newFakeAPI(t)
	m, _ := newLoggedInManager(t, api)

	res, err := m.Client().Get(api.URL() + "/always-expired")
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, int32(2), api.alwaysCalls.Load())
	assert.Equal(t, int32(1), api.refreshCalls.Load())
}

func TestManager_RefreshFailureClearsCredentials(t *testing.T) {
	api := newFakeAPI(t)
	api.failRefresh = true

	var calls atomic.Int32
	m, store := newLoggedInManager(t, api, client.OnLoginRequired(func() { calls.Add(1) }))

	api.expire("tok-1")

	_, err := m.Me(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrLoginRequired)

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, m.Credentials().Empty())

	stored, err := store.Load()
	require.NoError(t, err)
	assert.True(t, stored.Empty())
}

func TestManager_ExpiredWithoutRefreshTokenRequiresLogin(t *testing.T) {
	api := newFakeAPI(t)

	api.mu.Lock()
	api.access["tok-old"] = "expired"
	api.mu.Unlock()

	var calls atomic.Int32
	store := client.NewMemoryStore(client.Credentials{Token: "tok-old"})
	m, err := client.New(api.URL(),
		client.WithStore(store),
		client.OnLoginRequired(func() { calls.Add(1) }),
	)
	require.NoError(t, err)

	_, err = m.Me(context.Background())
	assert.ErrorIs(t, err, client.ErrLoginRequired)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
	assert.Equal(t, int32(1), calls.Load())
}

func TestManager_InvalidTokenSkipsRefresh(t *testing.T) {
	api := newFakeAPI(t)
	m, store := newLoggedInManager(t, api)

	api.forget("tok-1")

	_, err := m.Me(context.Background())
	assert.ErrorIs(t, err, client.ErrLoginRequired)
	assert.Equal(t, int32(0), api.refreshCalls.Load())

	stored, err := store.Load()
	require.NoError(t, err)
	assert.True(t, stored.Empty())
}

func TestManager_StaleRejectionKeepsNewerLogin(t *testing.T) {
	api := newFakeAPI(t)
	api.rejectStarted = make(chan struct{}, 1)
	api.rejectGate = make(chan struct{})

	var calls atomic.Int32
	m, store := newLoggedInManager(t, api, client.OnLoginRequired(func() { calls.Add(1) }))

	errCh := make(chan error, 1)
	go func() {
		res, err := m.Client().Get(api.URL() + "/late-invalid")
		if err == nil {
			res.Body.Close()
		}
		errCh <- err
	}()

	select {
	case <-api.rejectStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}

	_, err := m.Login(context.Background(), "runner_01", testPassword)
	require.NoError(t, err)
	close(api.rejectGate)

	err = <-errCh
	assert.ErrorIs(t, err, client.ErrLoggedOut)
	assert.NotErrorIs(t, err, client.ErrLoginRequired)

	assert.Equal(t, "tok-2", m.Credentials().Token)
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, client.Credentials{Token: "tok-2", RefreshToken: "rt-2"}, stored)
	assert.Equal(t, int32(0), calls.Load())
}

func TestManager_MissingTokenRequiresLogin(t *testing.T) {
	api := newFakeAPI(t)

	m, err := client.New(api.URL())
	require.NoError(t, err)

	_, err = m.Me(context.Background())
	assert.ErrorIs(t, err, client.ErrLoginRequired)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestManager_CoalescesConcurrentRefreshes(t *testing.T) {
	api := newFakeAPI(t)
	api.refreshStarted = make(chan struct{}, 1)
	api.refreshGate = make(chan struct{})

	m, _ := newLoggedInManager(t, api)
	api.expire("tok-1")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Me(context.Background())
			errs <- err
		}()
	}

	select {
	case <-api.refreshStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}

	time.Sleep(50 * time.Millisecond)
	close(api.refreshGate)

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, "tok-2", m.Credentials().Token)
}

func TestManager_LogoutDuringRefreshDiscardsResult(t *testing.T) {
	api := newFakeAPI(t)
	api.refreshStarted = make(chan struct{}, 1)
	api.refreshGate = make(chan struct{})

	var calls atomic.Int32
	m, store := newLoggedInManager(t, api, client.OnLoginRequired(func() { calls.Add(1) }))
	api.expire("tok-1")

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Me(context.Background())
		errCh <- err
	}()

	select {
	case <-api.refreshStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}

	require.NoError(t, m.Logout(context.Background()))
	close(api.refreshGate)

	err := <-errCh
	assert.ErrorIs(t, err, client.ErrLoggedOut)

	assert.True(t, m.Credentials().Empty())
	stored, err := store.Load()
	require.NoError(t, err)
	assert.True(t, stored.Empty())

	assert.ElementsMatch(t, []string{"rt-1", "rt-2"}, api.Revoked())
	assert.Equal(t, int32(0), calls.Load())
}

func TestManager_LogoutClearsAndRevokes(t *testing.T) {
	api := newFakeAPI(t)
	m, store := newLoggedInManager(t, api)

	require.NoError(t, m.Logout(context.Background()))

	assert.False(t, m.LoggedIn())
	stored, err := store.Load()
	require.NoError(t, err)
	assert.True(t, stored.Empty())
	assert.Equal(t, []string{"rt-1"}, api.Revoked())
}

func TestManager_LogoutWhenServerUnreachable(t *testing.T) {
	api := newFakeAPI(t)
	m, _ := newLoggedInManager(t, api)

	api.server.Close()

	require.NoError(t, m.Logout(context.Background()))
	assert.False(t, m.LoggedIn())
}
