package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	EnvPrefix = "FITTRACK_"

	// FlagConfig names the flag holding the YAML file path
	FlagConfig = "config"
)

// Defaults are applied before any other source
func Defaults() map[string]any {
	return map[string]any{
		"server.address":          ":3000",
		"server.shutdown_timeout": "10s",
		"server.access_log":       true,
		"database.dsn":            "file:fittrack.db?cache=shared",
		"jwt.ttl":                 "1h",
		"jwt.refresh_ttl":         "168h",
		"jwt.issuer":              "fittrack",
		"bcrypt.cost":             10,
		"bcrypt.concurrency":      0,
		"auth.context_key":        "session",
		"auth.auth_scheme":        "Bearer",
		"cors.origins":            []string{"*"},
		"rate_limit.max":          100,
		"rate_limit.window":       "15m",
		"logging.level":           "info",
		"debug":                   false,
	}
}

// envKeys maps environment variables, without prefix, to config keys
var envKeys = map[string]string{
	"JWT_SECRET":             "jwt.secret",
	"JWT_EXPIRES_IN":         "jwt.ttl",
	"JWT_REFRESH_EXPIRES_IN": "jwt.refresh_ttl",
	"JWT_ISSUER":             "jwt.issuer",
	"BCRYPT_SALT_ROUNDS":     "bcrypt.cost",
	"ADDRESS":                "server.address",
	"PORT":                   "server.address",
	"DATABASE_URL":           "database.dsn",
	"CORS_ORIGIN":            "cors.origins",
	"LOG_LEVEL":              "logging.level",
	"RATE_LIMIT_MAX":         "rate_limit.max",
	"RATE_LIMIT_WINDOW":      "rate_limit.window",
	"DEBUG":                  "debug",
}

// flagKeys maps command line flags to config keys
var flagKeys = map[string]string{
	"address":   "server.address",
	"dsn":       "database.dsn",
	"log-level": "logging.level",
	"debug":     "debug",
}

// Flags returns the flag set understood by Load
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String(FlagConfig, "", "path to a YAML config file")
	fs.String("address", ":3000", "listen address")
	fs.String("dsn", "", "database DSN, sqlite file or postgres URL")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Bool("debug", false, "enable debug output")
	return fs
}

type loader struct {
	file  string
	flags *pflag.FlagSet
}

// Option configures Load
type Option func(*loader)

// WithFile loads a YAML file after the defaults
func WithFile(path string) Option {
	return func(l *loader) {
		l.file = path
	}
}

// WithFlags applies flags the user set, last
func WithFlags(fs *pflag.FlagSet) Option {
	return func(l *loader) {
		l.flags = fs
	}
}

// Load merges defaults, the optional YAML file, FITTRACK_ environment
// variables and flags, in that order, and validates the result.
func Load(opts ...Option) (*Config, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	if l.file == "" && l.flags != nil {
		if path, err := l.flags.GetString(FlagConfig); err == nil {
			l.file = path
		}
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if l.file != "" {
		if err := k.Load(file.Provider(l.file), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.file, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if l.flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(l.flags, ".", k, flagValue), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func envValue(name, value string) (string, any) {
	key, ok := envKeys[strings.TrimPrefix(name, EnvPrefix)]
	if !ok {
		return "", nil
	}

	switch name {
	case EnvPrefix + "PORT":
		if !strings.Contains(value, ":") {
			value = ":" + value
		}
	case EnvPrefix + "CORS_ORIGIN":
		origins := strings.Split(value, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		return key, origins
	}

	return key, value
}

func flagValue(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok {
		return "", nil
	}
	return key, f.Value.String()
}
