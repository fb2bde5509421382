package client_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeAPI mimics the auth endpoints with tokens the test controls
type fakeAPI struct {
	mu      sync.Mutex
	seq     int
	access  map[string]string // token -> "ok" | "expired"
	refresh map[string]bool
	revoked []string

	failRefresh    bool
	refreshGate    chan struct{}
	refreshStarted chan struct{}
	rejectGate     chan struct{}
	rejectStarted  chan struct{}

	refreshCalls atomic.Int32
	alwaysCalls  atomic.Int32

	server *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{
		access:  map[string]string{},
		refresh: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", api.handleLogin)
	mux.HandleFunc("POST /auth/register", api.handleLogin)
	mux.HandleFunc("POST /auth/refresh", api.handleRefresh)
	mux.HandleFunc("POST /auth/logout", api.handleLogout)
	mux.HandleFunc("GET /me", api.protected(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"principalId": "runner_01", "createdAt": "2024-03-01T12:00:00Z"})
	}))
	mux.HandleFunc("POST /echo", api.protected(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, r.Body)
	}))
	mux.HandleFunc("GET /late-invalid", func(w http.ResponseWriter, r *http.Request) {
		api.rejectStarted <- struct{}{}
		<-api.rejectGate
		writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "invalid"})
	})
	mux.HandleFunc("GET /always-expired", func(w http.ResponseWriter, r *http.Request) {
		api.alwaysCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "expired", "error": "TOKEN_EXPIRED"})
	})

	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) URL() string {
	return a.server.URL
}

func (a *fakeAPI) issue() map[string]string {
	a.seq++
	token := fmt.Sprintf("tok-%d", a.seq)
	refresh := fmt.Sprintf("rt-%d", a.seq)
	a.access[token] = "ok"
	a.refresh[refresh] = true
	return map[string]string{
		"token":        token,
		"refreshToken": refresh,
		"principalId":  "runner_01",
	}
}

func (a *fakeAPI) expire(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.access[token] = "expired"
}

func (a *fakeAPI) forget(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.access, token)
}

func (a *fakeAPI) Revoked() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.revoked...)
}

func (a *fakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body["password"] != "Str0ng!pass" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "INVALID_CREDENTIALS",
			"message": "the credentials provided are invalid",
		})
		return
	}

	a.mu.Lock()
	pair := a.issue()
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, pair)
}

func (a *fakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a.refreshCalls.Add(1)

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	var pair map[string]string
	if !a.failRefresh && a.refresh[body["refreshToken"]] {
		delete(a.refresh, body["refreshToken"])
		pair = a.issue()
	}
	a.mu.Unlock()

	if a.refreshStarted != nil {
		a.refreshStarted <- struct{}{}
	}
	if a.refreshGate != nil {
		<-a.refreshGate
	}

	if pair == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "REFRESH_TOKEN_INVALID",
			"message": "refresh token is invalid or expired",
		})
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (a *fakeAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	a.mu.Lock()
	a.revoked = append(a.revoked, body["refreshToken"])
	delete(a.refresh, body["refreshToken"])
	a.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (a *fakeAPI) protected(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "missing"})
			return
		}

		a.mu.Lock()
		state := a.access[token]
		a.mu.Unlock()

		switch state {
		case "ok":
			next(w, r)
		case "expired":
			writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "expired"})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "invalid"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
