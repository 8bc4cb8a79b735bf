package sessioncore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with secret valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "access ttl below range invalid",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 5 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "access ttl above range invalid",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = 2 * time.Hour
			},
			wantValid: false,
		},
		{
			name: "access ttl at upper bound valid",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = time.Hour
			},
			wantValid: true,
		},
		{
			name: "refresh ttl not above access invalid",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "hs256 short secret invalid",
			mutate: func(c *Config) {
				c.JWT.Secret = "too-short"
			},
			wantValid: false,
		},
		{
			name: "ed25519 without keys invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
			},
			wantValid: false,
		},
		{
			name: "rs256 invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "leeway too large invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "redis backend without addr invalid",
			mutate: func(c *Config) {
				c.RateLimit.Backend = "redis"
			},
			wantValid: false,
		},
		{
			name: "redis backend with addr valid",
			mutate: func(c *Config) {
				c.RateLimit.Backend = "redis"
				c.Redis.Addr = "localhost:6379"
			},
			wantValid: true,
		},
		{
			name: "unknown backend invalid",
			mutate: func(c *Config) {
				c.RateLimit.Backend = "memcached"
			},
			wantValid: false,
		},
		{
			name: "zero rule limit invalid",
			mutate: func(c *Config) {
				r := c.RateLimit.Rules["auth"]
				r.Limit = 0
				c.RateLimit.Rules["auth"] = r
			},
			wantValid: false,
		},
		{
			name: "cookie names collide invalid",
			mutate: func(c *Config) {
				c.Cookies.RefreshName = c.CSRF.CookieName
			},
			wantValid: false,
		},
		{
			name: "mfa skew too wide invalid",
			mutate: func(c *Config) {
				c.MFA.Skew = 5
			},
			wantValid: false,
		},
		{
			name: "backup digits out of range invalid",
			mutate: func(c *Config) {
				c.MFA.BackupCodeDigits = 4
			},
			wantValid: false,
		},
		{
			name: "unknown timezone invalid",
			mutate: func(c *Config) {
				c.Telemetry.Timezone = "Mars/Olympus"
			},
			wantValid: false,
		},
		{
			name: "unknown severity invalid",
			mutate: func(c *Config) {
				c.Telemetry.Detectors.AlertMinSeverity = "urgent"
			},
			wantValid: false,
		},
		{
			name: "reversed unusual hours invalid",
			mutate: func(c *Config) {
				c.Telemetry.Detectors.UnusualHourStart = 6
				c.Telemetry.Detectors.UnusualHourEnd = 2
			},
			wantValid: false,
		},
		{
			name: "kafka brokers without topic invalid",
			mutate: func(c *Config) {
				c.Telemetry.Alerts.KafkaBrokers = []string{"localhost:9092"}
			},
			wantValid: false,
		},
		{
			name: "negative retention invalid",
			mutate: func(c *Config) {
				c.Retention.LoginAttempts = -time.Hour
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestDefaultConfigNeedsSecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("default config must not validate without a signing secret")
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessioncore.yaml")
	body := []byte(`
jwt:
  access_ttl: 30m
  secret: file-secret-file-secret-file-secret
refresh:
  rotate: false
rate_limit:
  backend: memory
telemetry:
  timezone: UTC
store:
  driver: sqlite
  dsn: "file:test.db"
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SESSIONCORE_STORE_DSN", "file:env.db")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.AccessTTL != 30*time.Minute {
		t.Fatalf("expected 30m access ttl, got %s", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != DefaultConfig().JWT.RefreshTTL {
		t.Fatalf("expected default refresh ttl, got %s", cfg.JWT.RefreshTTL)
	}
	if cfg.Refresh.Rotate {
		t.Fatalf("expected rotation disabled by file")
	}
	if cfg.Store.DSN != "file:env.db" {
		t.Fatalf("expected env override of dsn, got %q", cfg.Store.DSN)
	}
	if cfg.Telemetry.Timezone != "UTC" {
		t.Fatalf("unexpected timezone %q", cfg.Telemetry.Timezone)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
