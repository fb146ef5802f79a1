// Package config handles application configuration. Values are layered:
// built-in defaults, then an optional TOML file, then environment variables
// such as APP_PORT or POSTGRES_HOST. The result is validated on load.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// defaultDBPassword is the development password; production refuses it.
const defaultDBPassword = "changeme"

// Config holds all application configuration values.
type Config struct {
	App       AppConfig       `koanf:"app"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Valkey    ValkeyConfig    `koanf:"valkey"`
	Typst     TypstConfig     `koanf:"typst"`
	PDF       PDFConfig       `koanf:"pdf"`
	S3        S3Config        `koanf:"s3"`
	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// AppConfig holds server settings.
type AppConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port" validate:"required,numeric"`
	Env      string `koanf:"env" validate:"oneof=development production testing"`
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`
}

// PostgresConfig holds the database connection settings.
type PostgresConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     string `koanf:"port" validate:"required,numeric"`
	User     string `koanf:"user" validate:"required"`
	Password string `koanf:"password"`
	DB       string `koanf:"db" validate:"required"`
	SSLMode  string `koanf:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

// ValkeyConfig holds the Valkey (Redis-compatible) connection settings.
// Valkey is only contacted when the PDF cache is enabled.
type ValkeyConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port" validate:"omitempty,numeric"`
	Password string `koanf:"password"`
}

// TypstConfig controls the external compiler.
type TypstConfig struct {
	Bin           string        `koanf:"bin" validate:"required"`
	WorkDir       string        `koanf:"workdir"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxConcurrent int64         `koanf:"max_concurrent" validate:"min=1"`
}

// PDFConfig controls caching of compiled documents. A zero CacheTTL
// disables the cache.
type PDFConfig struct {
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`
}

// S3Config holds the optional document archive settings.
type S3Config struct {
	Endpoint  string        `koanf:"endpoint" validate:"omitempty,url"`
	Region    string        `koanf:"region"`
	AccessKey string        `koanf:"access_key"`
	SecretKey string        `koanf:"secret_key"`
	Bucket    string        `koanf:"bucket"`
	URLExpiry time.Duration `koanf:"url_expiry" validate:"gte=0"`
}

// AuthConfig holds the shared secret of the external identity provider.
type AuthConfig struct {
	Secret string `koanf:"secret"`
	Issuer string `koanf:"issuer"`
}

// RateLimitConfig limits compile requests per client IP.
type RateLimitConfig struct {
	Requests int           `koanf:"requests" validate:"min=1"`
	Window   time.Duration `koanf:"window" validate:"gt=0"`
}

// sections are the top-level keys environment variables may set. The first
// underscore of a variable separates the section from the key.
var sections = map[string]bool{
	"app": true, "postgres": true, "valkey": true, "typst": true,
	"pdf": true, "s3": true, "auth": true, "ratelimit": true,
}

func defaults() map[string]any {
	return map[string]any{
		"app.host":      "0.0.0.0",
		"app.port":      "8080",
		"app.env":       "development",
		"app.log_level": "info",

		"postgres.host":     "localhost",
		"postgres.port":     "5432",
		"postgres.user":     "contractbuilder",
		"postgres.password": defaultDBPassword,
		"postgres.db":       "contractbuilder",
		"postgres.sslmode":  "disable",

		"valkey.host": "localhost",
		"valkey.port": "6379",

		"typst.bin":            "typst",
		"typst.timeout":        30 * time.Second,
		"typst.max_concurrent": 4,

		"pdf.cache_ttl": time.Duration(0),

		"s3.region":     "us-east-1",
		"s3.url_expiry": 24 * time.Hour,

		"ratelimit.requests": 10,
		"ratelimit.window":   time.Minute,
	}
}

// Load reads configuration from defaults, the TOML file at path (skipped
// when path is empty) and the environment, in that order. Returns an error
// if values are invalid or critical values are missing in production mode.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps POSTGRES_HOST to postgres.host and TYPST_MAX_CONCURRENT to
// typst.max_concurrent. Unknown sections and empty values are ignored.
func envKey(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	section, key, ok := strings.Cut(strings.ToLower(name), "_")
	if !ok || key == "" || !sections[section] {
		return "", nil
	}
	return section + "." + key, value
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.App.Env == "production" {
		if c.Postgres.Password == defaultDBPassword || c.Postgres.Password == "" {
			return errors.New("POSTGRES_PASSWORD must be set in production")
		}
		if c.Auth.Secret == "" {
			return errors.New("AUTH_SECRET must be set in production")
		}
		if len(c.Auth.Secret) < 32 {
			return errors.New("AUTH_SECRET must be at least 32 characters in production")
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     c.Postgres.Host + ":" + c.Postgres.Port,
		Path:     "/" + c.Postgres.DB,
		RawQuery: "sslmode=" + c.Postgres.SSLMode,
	}
	return u.String()
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.App.Host, c.App.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.App.Env == "development"
}

// CacheEnabled reports whether compiled PDFs should be cached in Valkey.
func (c *Config) CacheEnabled() bool {
	return c.PDF.CacheTTL > 0 && c.Valkey.Host != ""
}
