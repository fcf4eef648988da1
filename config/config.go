// Package config loads the eduquiz-auth settings from defaults, an optional
// YAML file, EDUQUIZ_ environment variables and command line flags, in that
// order of precedence.
package config

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	auth "github.com/eduquiz/go-auth"
)

// EnvPrefix is stripped from environment variables. Nested keys use a
// double underscore: EDUQUIZ_AUTH__SIGNING_KEY sets auth.signing_key.
const EnvPrefix = "EDUQUIZ_"

// DevSigningKey is the default key. Serving with it logs a warning.
const DevSigningKey = "eduquiz-development-signing-key-change-me"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Mail     MailConfig     `koanf:"mail"`
	Seed     SeedConfig     `koanf:"seed"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Addr          string `koanf:"addr"`
	BaseURL       string `koanf:"base_url"`
	SecureCookies bool   `koanf:"secure_cookies"`
	ReloadViews   bool   `koanf:"reload_views"`
}

type DatabaseConfig struct {
	Driver       string `koanf:"driver"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	Debug        bool   `koanf:"debug"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type AuthConfig struct {
	SigningKey      string        `koanf:"signing_key"`
	SigningMethod   string        `koanf:"signing_method"`
	Issuer          string        `koanf:"issuer"`
	Audience        []string      `koanf:"audience"`
	TokenExpiration int           `koanf:"token_expiration"`
	ContextKey      string        `koanf:"context_key"`
	TokenLookup     string        `koanf:"token_lookup"`
	AuthScheme      string        `koanf:"auth_scheme"`
	CSRFKey         string        `koanf:"csrf_key"`
	PasswordPolicy  bool          `koanf:"password_policy"`
	LockoutAttempts int           `koanf:"lockout_attempts"`
	LockoutWindow   time.Duration `koanf:"lockout_window"`
}

type MailConfig struct {
	Driver    string         `koanf:"driver"`
	FromEmail string         `koanf:"from_email"`
	FromName  string         `koanf:"from_name"`
	Retries   uint64         `koanf:"retries"`
	SMTP      SMTPConfig     `koanf:"smtp"`
	SendGrid  SendGridConfig `koanf:"sendgrid"`
}

type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	TLS      string `koanf:"tls"`
}

type SendGridConfig struct {
	APIKey string `koanf:"api_key"`
}

type SeedConfig struct {
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
	// ActivityFile receives audit events as JSON lines when set
	ActivityFile string `koanf:"activity_file"`
}

var _ auth.Config = (*Config)(nil)

// Defaults returns the flat key map loaded before any other source
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":           ":8080",
		"server.base_url":       "http://localhost:8080",
		"server.secure_cookies": false,
		"server.reload_views":   false,

		"database.driver":       "sqlite",
		"database.dsn":          "file:eduquiz.db?cache=shared",
		"database.auto_migrate": true,

		"auth.signing_key":      DevSigningKey,
		"auth.signing_method":   "HS256",
		"auth.issuer":           "eduquiz",
		"auth.audience":         []string{"eduquiz"},
		"auth.token_expiration": 24,
		"auth.context_key":      "eduquiz_session",
		"auth.password_policy":  false,
		"auth.lockout_attempts": 0,
		"auth.lockout_window":   "15m",

		"mail.driver":     "console",
		"mail.from_email": "noreply@eduquiz.com",
		"mail.from_name":  "EduQuiz",
		"mail.retries":    2,
		"mail.smtp.port":  587,
		"mail.smtp.tls":   "opportunistic",

		"seed.admin_email":    auth.DefaultAdminEmail,
		"seed.admin_password": auth.DefaultAdminPassword,

		"log.format": "json",
		"log.level":  "info",
	}
}

// Load reads the configuration. path and flags are optional.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load config defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load environment")
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load flags")
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(s string) string {
	key := strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Database),
		validation.Field(&c.Auth),
		validation.Field(&c.Mail),
		validation.Field(&c.Seed),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"violations": err.Error()})
	}
	return nil
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
		validation.Field(&s.BaseURL, validation.Required, is.URL),
	)
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite", "sqlite3", "postgres", "pg", "postgresql")),
		validation.Field(&d.DSN, validation.When(d.Driver == "postgres" || d.Driver == "pg" || d.Driver == "postgresql", validation.Required)),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
	)
}

func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&a.SigningMethod, validation.In("HS256")),
		validation.Field(&a.TokenExpiration, validation.Min(1)),
		validation.Field(&a.CSRFKey, validation.When(a.CSRFKey != "", validation.Length(32, 0))),
		validation.Field(&a.LockoutAttempts, validation.Min(0)),
		validation.Field(&a.LockoutWindow, validation.When(a.LockoutAttempts > 0, validation.Required)),
	)
}

func (m MailConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Driver, validation.Required, validation.In("console", "smtp", "sendgrid", "none")),
		validation.Field(&m.FromEmail, validation.Required, is.EmailFormat),
		validation.Field(&m.SMTP, validation.When(m.Driver == "smtp", validation.By(func(any) error {
			return validation.ValidateStruct(&m.SMTP,
				validation.Field(&m.SMTP.Host, validation.Required),
				validation.Field(&m.SMTP.Port, validation.Required, validation.Min(1), validation.Max(65535)),
			)
		}))),
		validation.Field(&m.SendGrid, validation.When(m.Driver == "sendgrid", validation.By(func(any) error {
			return validation.ValidateStruct(&m.SendGrid,
				validation.Field(&m.SendGrid.APIKey, validation.Required),
			)
		}))),
	)
}

func (s SeedConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.AdminEmail, validation.Required, is.EmailFormat),
		validation.Field(&s.AdminPassword, validation.Required),
	)
}

// UsesDevSigningKey reports whether the signing key was never changed
func (c *Config) UsesDevSigningKey() bool {
	return c.Auth.SigningKey == DevSigningKey
}

// CSRFSecret returns the csrf key, derived from the signing key when unset
func (c *Config) CSRFSecret() []byte {
	if c.Auth.CSRFKey != "" {
		return []byte(c.Auth.CSRFKey)
	}
	return []byte("csrf:" + c.Auth.SigningKey)
}

func (c *Config) GetSigningKey() string           { return c.Auth.SigningKey }
func (c *Config) GetSigningMethod() string        { return c.Auth.SigningMethod }
func (c *Config) GetContextKey() string           { return c.Auth.ContextKey }
func (c *Config) GetTokenExpiration() int         { return c.Auth.TokenExpiration }
func (c *Config) GetTokenLookup() string          { return c.Auth.TokenLookup }
func (c *Config) GetAuthScheme() string           { return c.Auth.AuthScheme }
func (c *Config) GetIssuer() string               { return c.Auth.Issuer }
func (c *Config) GetAudience() []string           { return c.Auth.Audience }
func (c *Config) GetBaseURL() string              { return c.Server.BaseURL }
func (c *Config) GetSecureCookies() bool          { return c.Server.SecureCookies }
func (c *Config) GetPasswordPolicy() bool         { return c.Auth.PasswordPolicy }
func (c *Config) GetLockoutAttempts() int         { return c.Auth.LockoutAttempts }
func (c *Config) GetLockoutWindow() time.Duration { return c.Auth.LockoutWindow }
