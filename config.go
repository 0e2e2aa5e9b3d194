package signin

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the options consumed by the token service and HTTP layer
type Config interface {
	GetSigningKey() string
	GetContextKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetIssuer() string
	GetAudience() []string
}

// LoginConfig tunes password verification
type LoginConfig struct {
	MaxAttempts      int    `koanf:"max_attempts" json:"max_attempts"`
	CoolDownPeriod   string `koanf:"cool_down_period" json:"cool_down_period"`
	PasswordHashCost int    `koanf:"password_hash_cost" json:"password_hash_cost"`
}

// TwoFactorConfig tunes one time codes
type TwoFactorConfig struct {
	CodeLength  int    `koanf:"code_length" json:"code_length"`
	CodeTTL     string `koanf:"code_ttl" json:"code_ttl"`
	MaxAttempts int    `koanf:"max_attempts" json:"max_attempts"`
}

// GetCodeTTL returns the parsed code TTL
func (t TwoFactorConfig) GetCodeTTL() time.Duration {
	d, err := time.ParseDuration(t.CodeTTL)
	if err != nil {
		return DefaultCodeTTL
	}
	return d
}

// DatabaseConfig selects the user directory backend
type DatabaseConfig struct {
	Driver string `koanf:"driver" json:"driver"`
	DSN    string `koanf:"dsn" json:"dsn"`
}

// RedisConfig configures the challenge store. An empty Addr keeps
// challenges in memory.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr"`
	Password string `koanf:"password" json:"-"`
	DB       int    `koanf:"db" json:"db"`
	Prefix   string `koanf:"prefix" json:"prefix"`
}

// HTTPConfig configures the server
type HTTPConfig struct {
	Addr          string `koanf:"addr" json:"addr"`
	SecureCookies bool   `koanf:"secure_cookies" json:"secure_cookies"`
	CSRF          bool   `koanf:"csrf" json:"csrf"`
	RateLimit     int    `koanf:"rate_limit" json:"rate_limit"`
}

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// BaseConfig is the full configuration of the sign in service
type BaseConfig struct {
	Debug                 bool            `koanf:"debug" json:"debug"`
	SigningKey            string          `koanf:"signing_key" json:"-"`
	ContextKey            string          `koanf:"context_key" json:"context_key"`
	TokenExpiration       int             `koanf:"token_expiration" json:"token_expiration"`
	ExtendedTokenDuration int             `koanf:"extended_token_duration" json:"extended_token_duration"`
	Issuer                string          `koanf:"issuer" json:"issuer"`
	Audience              []string        `koanf:"audience" json:"audience"`
	MessagesPath          string          `koanf:"messages_path" json:"messages_path"`
	Login                 LoginConfig     `koanf:"login" json:"login"`
	TwoFactor             TwoFactorConfig `koanf:"two_factor" json:"two_factor"`
	Database              DatabaseConfig  `koanf:"database" json:"database"`
	Redis                 RedisConfig     `koanf:"redis" json:"redis"`
	HTTP                  HTTPConfig      `koanf:"http" json:"http"`
}

var _ Config = (*BaseConfig)(nil)

// DefaultConfigValues are loaded before any file or override
func DefaultConfigValues() map[string]any {
	return map[string]any{
		"debug":                    false,
		"context_key":              "jwt",
		"token_expiration":         24,
		"extended_token_duration":  24 * 30,
		"issuer":                   "go-signin",
		"audience":                 []string{"web"},
		"login.max_attempts":       MaxLoginAttempts,
		"login.cool_down_period":   CoolDownPeriod,
		"login.password_hash_cost": PasswordHashCost,
		"two_factor.code_length":   DefaultCodeLength,
		"two_factor.code_ttl":      DefaultCodeTTL.String(),
		"two_factor.max_attempts":  DefaultMaxCodeAttempts,
		"database.driver":          DriverSQLite,
		"database.dsn":             "file:signin.db?cache=shared",
		"redis.prefix":             "signin:2fa",
		"http.addr":                ":8572",
		"http.secure_cookies":      true,
		"http.csrf":                true,
		"http.rate_limit":          20,
	}
}

// LoadConfig layers defaults, the optional JSON file at path, and
// overrides, in that order, then validates the result.
func LoadConfig(path string, overrides map[string]any) (*BaseConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(DefaultConfigValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("load config overrides: %w", err)
		}
	}

	cfg := &BaseConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate will run validation rules
func (c BaseConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.ContextKey, validation.Required),
		validation.Field(&c.TokenExpiration, validation.Required, validation.Min(1)),
		validation.Field(&c.ExtendedTokenDuration, validation.Min(0)),
		validation.Field(&c.Login),
		validation.Field(&c.TwoFactor),
		validation.Field(&c.Database),
		validation.Field(&c.HTTP),
	)
}

// Validate will run validation rules
func (l LoginConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&l.CoolDownPeriod, validation.Required, validation.By(isDuration)),
		validation.Field(&l.PasswordHashCost, validation.Min(4), validation.Max(31)),
	)
}

// Validate will run validation rules
func (t TwoFactorConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.CodeLength, validation.Required, validation.Min(4), validation.Max(10)),
		validation.Field(&t.CodeTTL, validation.Required, validation.By(isDuration)),
		validation.Field(&t.MaxAttempts, validation.Required, validation.Min(1)),
	)
}

// Validate will run validation rules
func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
	)
}

// Validate will run validation rules
func (h HTTPConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Addr, validation.Required),
		validation.Field(&h.RateLimit, validation.Min(0)),
	)
}

func isDuration(value any) error {
	s, _ := value.(string)
	if _, err := time.ParseDuration(s); err != nil {
		return errors.New("must be a valid duration")
	}
	return nil
}

func (c BaseConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c BaseConfig) GetContextKey() string {
	return c.ContextKey
}

func (c BaseConfig) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c BaseConfig) GetExtendedTokenDuration() int {
	return c.ExtendedTokenDuration
}

func (c BaseConfig) GetIssuer() string {
	return c.Issuer
}

func (c BaseConfig) GetAudience() []string {
	return c.Audience
}
