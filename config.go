package sessioncore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/sessioncore/internal/audit"
	"github.com/MrEthical07/sessioncore/internal/csrf"
	"github.com/MrEthical07/sessioncore/internal/logging"
	"github.com/MrEthical07/sessioncore/internal/mfa"
	"github.com/MrEthical07/sessioncore/internal/rate"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/password"
	"github.com/MrEthical07/sessioncore/store"
)

// Config is the full engine configuration. Start from DefaultConfig and
// treat the value as immutable once passed to the Builder.
type Config struct {
	JWT       JWTConfig       `mapstructure:"jwt"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CSRF      csrf.Config     `mapstructure:"csrf"`
	Cookies   CookieConfig    `mapstructure:"cookies"`
	MFA       mfa.Config      `mapstructure:"mfa"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Store     store.Config    `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Retention RetentionConfig `mapstructure:"retention"`
	Password  password.Config `mapstructure:"password"`
	Log       logging.Config  `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing material and token lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
	SigningMethod string        `mapstructure:"signing_method"` // "hs256" (default) or "ed25519"
	// Secret is the HS256 key. Ed25519 keys are set through PrivateKey and
	// PublicKey, usually from files named by PrivateKeyFile and PublicKeyFile.
	Secret         string        `mapstructure:"secret"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	PublicKeyFile  string        `mapstructure:"public_key_file"`
	PrivateKey     []byte        `mapstructure:"-"`
	PublicKey      []byte        `mapstructure:"-"`
	KeyID          string        `mapstructure:"key_id"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	Leeway         time.Duration `mapstructure:"leeway"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

type RefreshConfig struct {
	// Rotate replaces the refresh token on every use and rejects reuse of
	// the old one.
	Rotate bool `mapstructure:"rotate"`
	// UnparseableRetention bounds revocation records of tokens whose expiry
	// cannot be read.
	UnparseableRetention time.Duration `mapstructure:"unparseable_retention"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is "memory" (default) or "redis".
	Backend   string                 `mapstructure:"backend"`
	FailOpen  bool                   `mapstructure:"fail_open"`
	KeyPrefix string                 `mapstructure:"key_prefix"`
	MaxKeys   int                    `mapstructure:"max_keys"`
	Rules     map[rate.Tier]rate.Rule `mapstructure:"rules"`
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig shapes the refresh token cookie. It is always HttpOnly and
// SameSite=Strict.
type CookieConfig struct {
	RefreshName string `mapstructure:"refresh_name"`
	Path        string `mapstructure:"path"`
	Domain      string `mapstructure:"domain"`
	Secure      bool   `mapstructure:"secure"`
}

/*
====================================
TELEMETRY CONFIG
====================================
*/

type TelemetryConfig struct {
	Detectors telemetry.Config `mapstructure:",squash"`
	// Timezone is the IANA zone used by the unusual-hour detector. Empty
	// means the process local zone.
	Timezone string       `mapstructure:"timezone"`
	Alerts   AlertsConfig `mapstructure:"alerts"`
}

// AlertsConfig selects where high-severity events are forwarded. Log
// delivery is always on when the dispatcher is enabled.
type AlertsConfig struct {
	Dispatcher     audit.Config  `mapstructure:",squash"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
	KafkaBrokers   []string      `mapstructure:"kafka_brokers"`
	KafkaTopic     string        `mapstructure:"kafka_topic"`
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RetentionConfig drives the maintenance sweep.
type RetentionConfig struct {
	LoginAttempts  time.Duration `mapstructure:"login_attempts"`
	ResolvedEvents time.Duration `mapstructure:"resolved_events"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustProxyHeaders lets X-Forwarded-For and X-Real-IP name the client.
	// Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
	// AdminToken is the bearer credential for /admin routes. Empty disables
	// them.
	AdminToken string `mapstructure:"admin_token"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT signing material is left
// empty and must be supplied.
func DefaultConfig() Config {
	alerts := AlertsConfig{
		Dispatcher:     audit.Config{Enabled: true, BufferSize: 1024, DropIfFull: true, DeliveryTimeout: 10 * time.Second},
		WebhookTimeout: 5 * time.Second,
	}
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "sessioncore",
		},
		Refresh: RefreshConfig{
			Rotate:               true,
			UnparseableRetention: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:   true,
			Backend:   "memory",
			FailOpen:  true,
			KeyPrefix: "rl:",
			MaxKeys:   100_000,
			Rules:     rate.DefaultRules(),
		},
		CSRF: csrf.DefaultConfig(),
		Cookies: CookieConfig{
			RefreshName: "refresh_token",
			Path:        "/",
			Secure:      true,
		},
		MFA:       mfa.DefaultConfig(),
		Telemetry: TelemetryConfig{Detectors: telemetry.DefaultConfig(), Alerts: alerts},
		Store: store.Config{
			Driver:       store.DriverSQLite,
			DSN:          "file:sessioncore.db",
			QueryTimeout: 5 * time.Second,
		},
		Retention: RetentionConfig{
			LoginAttempts:  30 * 24 * time.Hour,
			ResolvedEvents: 90 * 24 * time.Hour,
			SweepInterval:  time.Hour,
		},
		Password: password.DefaultConfig(),
		Log:      logging.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

/*
====================================
VALIDATION
====================================
*/

const (
	minAccessTTL = 15 * time.Minute
	maxAccessTTL = 60 * time.Minute
)

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL < minAccessTTL || c.JWT.AccessTTL > maxAccessTTL {
		return fmt.Errorf("jwt access_ttl must be between %s and %s", minAccessTTL, maxAccessTTL)
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("jwt refresh_ttl must exceed access_ttl")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "hs256":
		if len(c.JWT.Secret) < 32 && len(c.JWT.PrivateKey) < 32 {
			return errors.New("jwt hs256 requires a secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("jwt ed25519 requires private and public keys")
		}
	default:
		return fmt.Errorf("unsupported jwt signing_method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("jwt leeway must be between 0 and 2m")
	}

	// Rate limit
	switch c.RateLimit.Backend {
	case "", "memory":
		if c.RateLimit.MaxKeys < 0 {
			return errors.New("rate_limit max_keys must be >= 0")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("rate_limit backend redis requires redis addr")
		}
	default:
		return fmt.Errorf("unsupported rate_limit backend %q", c.RateLimit.Backend)
	}
	for tier, r := range c.RateLimit.Rules {
		if r.Limit <= 0 || r.Window <= 0 {
			return fmt.Errorf("rate_limit rule %q needs a positive limit and window", tier)
		}
	}

	// CSRF and cookies
	if c.CSRF.TTL <= 0 {
		return errors.New("csrf ttl must be > 0")
	}
	if c.Cookies.RefreshName == "" {
		return errors.New("cookies refresh_name must be set")
	}
	if c.Cookies.RefreshName == c.CSRF.CookieName {
		return errors.New("refresh and csrf cookies must have different names")
	}

	// MFA
	if c.MFA.Skew > 3 {
		return errors.New("mfa skew must be <= 3")
	}
	if c.MFA.BackupCodeDigits != 0 && (c.MFA.BackupCodeDigits < 6 || c.MFA.BackupCodeDigits > 10) {
		return errors.New("mfa backup_code_digits must be between 6 and 10")
	}

	// Telemetry
	if c.Telemetry.Timezone != "" {
		if _, err := time.LoadLocation(c.Telemetry.Timezone); err != nil {
			return fmt.Errorf("telemetry timezone: %w", err)
		}
	}
	if s := c.Telemetry.Detectors.AlertMinSeverity; s != "" && !s.Valid() {
		return fmt.Errorf("telemetry alert_min_severity %q is not a severity", s)
	}
	h0, h1 := c.Telemetry.Detectors.UnusualHourStart, c.Telemetry.Detectors.UnusualHourEnd
	if h0 < 0 || h0 > 23 || h1 < 0 || h1 > 24 || h1 < h0 {
		return errors.New("telemetry unusual hours must satisfy 0 <= start <= end <= 24")
	}
	if len(c.Telemetry.Alerts.KafkaBrokers) > 0 && c.Telemetry.Alerts.KafkaTopic == "" {
		return errors.New("telemetry alerts kafka_topic is required with kafka_brokers")
	}

	// Store
	if c.Store.QueryTimeout < 0 {
		return errors.New("store query_timeout must be >= 0")
	}

	// Retention
	if c.Retention.LoginAttempts < 0 || c.Retention.ResolvedEvents < 0 || c.Retention.SweepInterval < 0 {
		return errors.New("retention durations must be >= 0")
	}

	// Server
	if t := c.Server.AdminToken; t != "" && len(t) < 16 {
		return errors.New("server admin_token must be at least 16 bytes")
	}

	// Password
	if c.Password.Policy.MaxBytes > 0 && c.Password.Policy.MinBytes > c.Password.Policy.MaxBytes {
		return errors.New("password policy min_bytes exceeds max_bytes")
	}

	return nil
}

func (c Config) location() *time.Location {
	if c.Telemetry.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Telemetry.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c Config) telemetryConfig() telemetry.Config {
	tc := c.Telemetry.Detectors
	if tc.Location == nil {
		tc.Location = c.location()
	}
	return tc
}
