package config

import (
	"errors"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	auth "github.com/goliatone/go-fitauth"
	"github.com/goliatone/go-print"
	"golang.org/x/crypto/bcrypt"
)

// Config is the effective server configuration
type Config struct {
	Server    Server    `koanf:"server" json:"server"`
	Database  Database  `koanf:"database" json:"database"`
	JWT       JWT       `koanf:"jwt" json:"jwt"`
	Bcrypt    Bcrypt    `koanf:"bcrypt" json:"bcrypt"`
	Auth      Auth      `koanf:"auth" json:"auth"`
	CORS      CORS      `koanf:"cors" json:"cors"`
	RateLimit RateLimit `koanf:"rate_limit" json:"rate_limit"`
	Logging   Logging   `koanf:"logging" json:"logging"`
	Debug     bool      `koanf:"debug" json:"debug"`
}

type Server struct {
	Address         string        `koanf:"address" json:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	AccessLog       bool          `koanf:"access_log" json:"access_log"`
}

type Database struct {
	DSN string `koanf:"dsn" json:"dsn"`
}

type JWT struct {
	Secret     string        `koanf:"secret" json:"secret"`
	TTL        time.Duration `koanf:"ttl" json:"ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl" json:"refresh_ttl"`
	Issuer     string        `koanf:"issuer" json:"issuer"`
}

type Bcrypt struct {
	Cost        int `koanf:"cost" json:"cost"`
	Concurrency int `koanf:"concurrency" json:"concurrency"`
}

type Auth struct {
	ContextKey string `koanf:"context_key" json:"context_key"`
	AuthScheme string `koanf:"auth_scheme" json:"auth_scheme"`
}

type CORS struct {
	Origins []string `koanf:"origins" json:"origins"`
}

type RateLimit struct {
	Max    int           `koanf:"max" json:"max"`
	Window time.Duration `koanf:"window" json:"window"`
}

type Logging struct {
	Level string `koanf:"level" json:"level"`
}

var _ auth.Config = (*Config)(nil)

func (c *Config) GetSigningKey() string {
	return c.JWT.Secret
}

func (c *Config) GetTokenTTL() time.Duration {
	return c.JWT.TTL
}

func (c *Config) GetRefreshTokenTTL() time.Duration {
	return c.JWT.RefreshTTL
}

func (c *Config) GetIssuer() string {
	return c.JWT.Issuer
}

func (c *Config) GetHashCost() int {
	return c.Bcrypt.Cost
}

func (c *Config) GetContextKey() string {
	return c.Auth.ContextKey
}

func (c *Config) GetAuthScheme() string {
	return c.Auth.AuthScheme
}

// Validate checks the values the server can not start without
func (c *Config) Validate() error {
	return validation.Errors{
		"server": validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Address, validation.Required),
		),
		"database": validation.ValidateStruct(&c.Database,
			validation.Field(&c.Database.DSN, validation.Required),
		),
		"jwt": validation.ValidateStruct(&c.JWT,
			validation.Field(&c.JWT.Secret, validation.Required.Error("jwt secret is required")),
			validation.Field(&c.JWT.TTL, validation.Required, validation.By(positiveDuration)),
			validation.Field(&c.JWT.RefreshTTL, validation.Required, validation.By(positiveDuration)),
		),
		"bcrypt": validation.ValidateStruct(&c.Bcrypt,
			validation.Field(&c.Bcrypt.Cost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
			validation.Field(&c.Bcrypt.Concurrency, validation.Min(0)),
		),
		"rate_limit": validation.ValidateStruct(&c.RateLimit,
			validation.Field(&c.RateLimit.Max, validation.Min(0)),
			validation.Field(&c.RateLimit.Window, validation.By(positiveDuration)),
		),
	}.Filter()
}

func positiveDuration(value any) error {
	d, _ := value.(time.Duration)
	if d <= 0 {
		return errors.New("must be a positive duration")
	}
	return nil
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	if c.JWT.Secret != "" {
		c.JWT.Secret = "********"
	}

	if u, err := url.Parse(c.Database.DSN); err == nil && u.User != nil {
		c.Database.DSN = u.Redacted()
	}

	c.CORS.Origins = append([]string(nil), c.CORS.Origins...)
	return c
}

// Dump renders the redacted configuration for debug output
func Dump(c *Config) string {
	return print.MaybePrettyJSON(c.Redacted())
}
