package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string
	GetHashCost() int
	GetContextKey() string
	GetAuthScheme() string
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetPrincipalID() string
	GetIssuedAt() time.Time
	GetExpiresAt() time.Time
}

// Authenticator holds the credential lifecycle use cases
type Authenticator interface {
	Register(ctx context.Context, identifier, password string) (*TokenPair, error)
	Login(ctx context.Context, identifier, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, principalID, current, next string) error
	Principal(ctx context.Context, principalID string) (*Principal, error)
	DeletePrincipal(ctx context.Context, principalID string) error
}

// PasswordAuthenticator hashes and verifies passwords
type PasswordAuthenticator interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, digest string) (bool, error)
	DummyVerify(ctx context.Context, password string)
}

// LogLevel orders logger output
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLogLevel falls back to info for unknown names
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewLogger returns the default logger filtered at the given level
func NewLogger(level string) Logger {
	return defLogger{level: ParseLogLevel(level)}
}

type defLogger struct {
	level LogLevel
}

func (d defLogger) Error(format string, args ...any) {
	d.print(LevelError, "[ERR] AUTH ", format, args...)
}

func (d defLogger) Warn(format string, args ...any) {
	d.print(LevelWarn, "[WRN] AUTH ", format, args...)
}

func (d defLogger) Info(format string, args ...any) {
	d.print(LevelInfo, "[INF] AUTH ", format, args...)
}

func (d defLogger) Debug(format string, args ...any) {
	d.print(LevelDebug, "[DBG] AUTH ", format, args...)
}

func (d defLogger) print(level LogLevel, prefix, format string, args ...any) {
	if level < d.level {
		return
	}
	fmt.Print(prefix + newline(format+formatPairs(args)))
}

// formatPairs renders key/value args as " key=value" pairs. A dangling
// key is printed with a missing marker.
func formatPairs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " %v=<missing>", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards everything, handy in tests
func NoopLogger() Logger {
	return noopLogger{}
}
