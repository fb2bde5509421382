// Package auth provides the credential trust core of the fittrack service:
// password hashing, signed access tokens, refresh token rotation and the
// bun backed stores they rely on.
//
// Tokens:
//   - Access tokens are HS256 JWTs carrying only the principal identifier
//     (sub) plus iat, exp and jti. Verification returns a tagged
//     Verification so callers can tell an expired token from a forged one.
//   - Refresh tokens are opaque random values. Only their sha256 is stored.
//     Each refresh consumes the presented token; presenting a consumed
//     token again revokes every refresh token of that principal.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther to describe
//     registration, login, refresh, logout and password change events. Sinks
//     run best-effort (errors are logged). Events never carry secrets.
package auth
