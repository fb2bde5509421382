package client

import (
	"fmt"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeLoginRequired = "LOGIN_REQUIRED"
	TextCodeLoggedOut     = "LOGGED_OUT"
)

var (
	// ErrLoginRequired the stored credentials can no longer be used; the
	// user has to log in again.
	ErrLoginRequired = errors.New("login required", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeLoginRequired)

	// ErrLoggedOut a refresh finished after Logout and was discarded
	ErrLoggedOut = errors.New("logged out while refreshing credentials", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(TextCodeLoggedOut)
)

// APIError is a non 2xx answer from the auth endpoints
type APIError struct {
	Status  int               `json:"-"`
	Code    string            `json:"error"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s (%s)", e.Status, e.Message, e.Code)
}
