// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads usermgmt settings from defaults, an optional YAML file,
// USERMGMT_ environment variables and command-line flags, in that order.
package config

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/usermgmt/internal/auth"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: USERMGMT_AUTH__TOKEN_TTL sets auth.token_ttl.
const EnvPrefix = "USERMGMT_"

// MinSecretLength is the shortest signing secret accepted outside dev mode.
const MinSecretLength = 32

// Token carriers.
const (
	CarrierCookie = "cookie"
	CarrierHeader = "header"
	CarrierAny    = "any"
)

// Config is the full process configuration.
type Config struct {
	Dev           bool                `koanf:"dev" json:"dev,omitempty" jsonschema:"description=Relax secret checks for local development"`
	Database      DatabaseConfig      `koanf:"database" json:"database,omitempty"`
	HTTP          HTTPConfig          `koanf:"http" json:"http,omitempty"`
	Auth          AuthConfig          `koanf:"auth" json:"auth,omitempty"`
	Log           LogConfig           `koanf:"log" json:"log,omitempty"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability,omitempty"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url" json:"url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
	MaxConns       int32         `koanf:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=0"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" jsonschema:"type=string,description=Go duration such as 30s"`
}

// HTTPConfig configures the public HTTP listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" json:"addr,omitempty"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout,omitempty" jsonschema:"type=string"`
	ReadTimeout       time.Duration `koanf:"read_timeout" json:"read_timeout,omitempty" jsonschema:"type=string"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout,omitempty" jsonschema:"type=string"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" jsonschema:"type=string"`
}

// AuthConfig configures hashing, token signing and the token carrier.
type AuthConfig struct {
	Secret     string        `koanf:"secret" json:"secret,omitempty" jsonschema:"description=HMAC signing secret (at least 32 bytes)"`
	Algorithm  string        `koanf:"algorithm" json:"algorithm,omitempty" jsonschema:"enum=HS256,enum=HS384,enum=HS512"`
	Audience   string        `koanf:"audience" json:"audience,omitempty"`
	TokenTTL   time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" jsonschema:"type=string"`
	Carrier    string        `koanf:"carrier" json:"carrier,omitempty" jsonschema:"enum=cookie,enum=header,enum=any"`
	Hasher     string        `koanf:"hasher" json:"hasher,omitempty" jsonschema:"enum=bcrypt,enum=argon2id"`
	BcryptCost int           `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" jsonschema:"minimum=4,maximum=31"`
	Cookie     CookieConfig  `koanf:"cookie" json:"cookie,omitempty"`
}

// CookieConfig configures the token cookie.
type CookieConfig struct {
	Name     string `koanf:"name" json:"name,omitempty"`
	Secure   bool   `koanf:"secure" json:"secure,omitempty"`
	SameSite string `koanf:"same_site" json:"same_site,omitempty" jsonschema:"enum=lax,enum=strict,enum=none"`
	Domain   string `koanf:"domain" json:"domain,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// ObservabilityConfig configures the metrics and health listener.
type ObservabilityConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Metrics and health address; empty disables"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			MaxConns:       10,
			ConnectTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Auth: AuthConfig{
			Algorithm:  auth.DefaultAlgorithm,
			Audience:   auth.DefaultAudience,
			TokenTTL:   auth.DefaultTokenTTL,
			Carrier:    CarrierAny,
			Hasher:     auth.HasherBcrypt,
			BcryptCost: 10,
			Cookie: CookieConfig{
				Name:     "bonds",
				SameSite: "lax",
			},
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Observability: ObservabilityConfig{
			Addr: "127.0.0.1:9100",
		},
	}
}

// flagKeys maps command-line flag names to config keys. Flags not listed here
// are ignored by Load.
var flagKeys = map[string]string{
	"dev":           "dev",
	"database-url":  "database.url",
	"addr":          "http.addr",
	"metrics-addr":  "observability.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"token-carrier": "auth.carrier",
}

// Load layers the configuration sources. path may be empty; flags may be nil.
// Only flags the user actually set override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(data); err != nil {
			return nil, oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns USERMGMT_AUTH__TOKEN_TTL into auth.token_ttl.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks cross-field rules the schema cannot express.
func (c *Config) Validate() error {
	invalid := func(field, reason string) error {
		return oops.Code("CONFIG_INVALID").
			With("field", field).
			Errorf("%s: %s", field, reason)
	}

	if c.Database.URL == "" {
		return invalid("database.url", "is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if !c.Dev && len(c.Auth.Secret) < MinSecretLength {
		return invalid("auth.secret", "must be at least 32 bytes")
	}
	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return invalid("auth.algorithm", "must be HS256, HS384 or HS512")
	}
	if c.Auth.Audience == "" {
		return invalid("auth.audience", "is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return invalid("auth.token_ttl", "must be positive")
	}
	switch c.Auth.Carrier {
	case CarrierCookie, CarrierHeader, CarrierAny:
	default:
		return invalid("auth.carrier", "must be cookie, header or any")
	}
	switch c.Auth.Hasher {
	case auth.HasherBcrypt:
		if c.Auth.BcryptCost != 0 && (c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31) {
			return invalid("auth.bcrypt_cost", "must be between 4 and 31")
		}
	case auth.HasherArgon2id:
	default:
		return invalid("auth.hasher", "must be bcrypt or argon2id")
	}
	if c.Auth.Cookie.Name == "" {
		return invalid("auth.cookie.name", "is required")
	}
	if _, err := c.Auth.Cookie.SameSiteMode(); err != nil {
		return err
	}
	if c.Auth.Cookie.SameSite == "none" && !c.Auth.Cookie.Secure {
		return invalid("auth.cookie.same_site", "none requires auth.cookie.secure")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}
	return nil
}

// SameSiteMode converts the configured same_site value.
func (c CookieConfig) SameSiteMode() (http.SameSite, error) {
	switch strings.ToLower(c.SameSite) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, oops.Code("CONFIG_INVALID").
			With("field", "auth.cookie.same_site").
			Errorf("auth.cookie.same_site: unknown mode %q", c.SameSite)
	}
}

// TokenConfig builds the token codec settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:    []byte(c.Auth.Secret),
		Algorithm: c.Auth.Algorithm,
		Audience:  c.Auth.Audience,
		TTL:       c.Auth.TokenTTL,
	}
}
