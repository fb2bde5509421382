package jwtware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-fitauth"
)

var (
	defaultTokenLookup       = "header:" + fiber.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// Reason values sent to clients in the 401 body. Clients only refresh on
// ReasonExpired.
const (
	ReasonMissing = "missing"
	ReasonExpired = "expired"
	ReasonInvalid = "invalid"
)

// ValidationListener is invoked after a token has been verified, before the
// request proceeds.
type ValidationListener func(c *fiber.Ctx, session auth.Session) error

// UnauthorizedHandler writes the rejection for a request. reason is one of
// the Reason constants.
type UnauthorizedHandler func(c *fiber.Ctx, reason string, err error) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   UnauthorizedHandler
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	// TokenVerifier is required for token validation
	TokenVerifier auth.TokenVerifier

	// ValidationListeners are invoked after token validation succeeds. Use them to
	// emit events or perform bookkeeping before the request proceeds.
	ValidationListeners []ValidationListener

	Logger auth.Logger
}

// Body is the JSON payload sent with every 401
type Body struct {
	Reason  string `json:"reason"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New returns the session middleware. It holds no mutable state and can
// serve any number of requests concurrently.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawTokenFromContext(c, extractors)
		if err != nil || raw == "" {
			return cfg.ErrorHandler(c, ReasonMissing, auth.ErrMissingCredential)
		}

		v := cfg.TokenVerifier.Verify(raw)
		switch v.Status {
		case auth.VerifyValid:
		case auth.VerifyExpired:
			return cfg.ErrorHandler(c, ReasonExpired, v.Err)
		case auth.VerifyMalformed, auth.VerifyBadSignature:
			cfg.Logger.Debug("rejected token", "status", v.Status, "path", c.Path())
			return cfg.ErrorHandler(c, ReasonInvalid, v.Err)
		default:
			return cfg.ErrorHandler(c, ReasonInvalid, fmt.Errorf("unknown verification status %s", v.Status))
		}

		session, err := auth.SessionFromVerification(v)
		if err != nil {
			return cfg.ErrorHandler(c, ReasonInvalid, err)
		}

		if err := cfg.runValidationListeners(c, session); err != nil {
			return cfg.ErrorHandler(c, ReasonInvalid, err)
		}

		c.Locals(cfg.ContextKey, session)
		c.SetUserContext(auth.WithSession(c.UserContext(), session))

		return cfg.SuccessHandler(c)
	}
}

// SessionFromLocals returns the session stored by the middleware
func SessionFromLocals(c *fiber.Ctx, key string) (auth.Session, bool) {
	if key == "" {
		key = "session"
	}
	session, ok := c.Locals(key).(auth.Session)
	return session, ok
}

func ExtractRawTokenFromContext(c *fiber.Ctx, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

// DefaultUnauthorizedHandler answers 401 with the reason and text code
func DefaultUnauthorizedHandler(c *fiber.Ctx, reason string, err error) error {
	body := Body{
		Reason:  reason,
		Error:   auth.TextCodeTokenInvalid,
		Message: "invalid token",
	}

	challenge := `Bearer error="invalid_token"`

	switch reason {
	case ReasonMissing:
		body.Error = auth.TextCodeMissingCredential
		body.Message = "missing credential"
		challenge = "Bearer"
	case ReasonExpired:
		body.Error = auth.TextCodeTokenExpired
		body.Message = "token expired"
	}

	c.Set(fiber.HeaderWWWAuthenticate, challenge)
	return c.Status(fiber.StatusUnauthorized).JSON(body)
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultUnauthorizedHandler
	}

	if cfg.TokenVerifier == nil {
		panic("AUTH: JWT middleware configuration: TokenVerifier is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.Logger == nil {
		cfg.Logger = auth.NoopLogger()
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, session auth.Session) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, session); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// header:Authorization,cookie:jwt,query:auth_token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c *fiber.Ctx) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l:]); token != "" {
				return token, nil
			}
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
