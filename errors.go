package auth

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

// Text codes exposed to clients. They are stable and safe to switch on.
const (
	TextCodeValidationFailed    = "VALIDATION_FAILED"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeMissingCredential   = "MISSING_CREDENTIAL"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
	TextCodeRefreshTokenReused  = "REFRESH_TOKEN_REUSED"
	TextCodeIdentifierTaken     = "IDENTIFIER_TAKEN"
	TextCodePrincipalNotFound   = "PRINCIPAL_NOT_FOUND"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodePasswordTooLong     = "PASSWORD_TOO_LONG"
	TextCodeHashFailure         = "HASH_FAILURE"
	TextCodeSigningFailure      = "SIGNING_FAILURE"
	TextCodeInternal            = "INTERNAL"
)

var (
	// ErrNoEmptyString is returned when hashing an empty password
	ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
				WithCode(errors.CodeBadRequest).
				WithTextCode(TextCodeEmptyPassword)

	// ErrPasswordTooLong bcrypt only looks at the first 72 bytes
	ErrPasswordTooLong = errors.New("password must be at most 72 bytes", errors.CategoryValidation).
				WithCode(errors.CodeBadRequest).
				WithTextCode(TextCodePasswordTooLong)

	// ErrMismatchedHashAndPassword is the only error a caller sees for a
	// wrong identifier or a wrong password.
	ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
					WithCode(errors.CodeUnauthorized).
					WithTextCode(TextCodeInvalidCreds)

	// ErrHashFailure covers malformed digests and bcrypt failures.
	ErrHashFailure = errors.New("unable to process credentials", errors.CategoryInternal).
			WithCode(errors.CodeInternal).
			WithTextCode(TextCodeHashFailure)

	// ErrSigningFailure is returned when a token can not be signed
	ErrSigningFailure = errors.New("unable to issue token", errors.CategoryInternal).
				WithCode(errors.CodeInternal).
				WithTextCode(TextCodeSigningFailure)

	// ErrMissingCredential no bearer token in the request
	ErrMissingCredential = errors.New("missing credential", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeMissingCredential)

	// ErrTokenExpired the token signature is valid but exp has passed
	ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(TextCodeTokenExpired)

	// ErrTokenMalformed covers malformed tokens and bad signatures
	ErrTokenMalformed = errors.New("token is invalid", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeTokenInvalid)

	// ErrRefreshTokenInvalid unknown, expired or revoked refresh token
	ErrRefreshTokenInvalid = errors.New("refresh token is invalid or expired", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeRefreshTokenInvalid)

	// ErrRefreshTokenReused a rotated refresh token was presented again
	ErrRefreshTokenReused = errors.New("refresh token was already used", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeRefreshTokenReused)

	// ErrIdentifierTaken registration with an identifier already in use
	ErrIdentifierTaken = errors.New("identifier already registered", errors.CategoryConflict).
				WithCode(errors.CodeConflict).
				WithTextCode(TextCodeIdentifierTaken)

	// ErrIdentityNotFound is the error we return for non found principals
	ErrIdentityNotFound = errors.New("principal not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound).
				WithTextCode(TextCodePrincipalNotFound)

	// ErrUnableToFindSession the request pipeline holds no session
	ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeMissingCredential)
)

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return HasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for invalid tokens
func IsMalformedError(err error) bool {
	return HasTextCode(err, TextCodeTokenInvalid)
}

// HTTPStatus maps an error to the status code a handler should answer with.
// Errors outside the taxonomy are internal.
func HTTPStatus(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
