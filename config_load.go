package sessioncore

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, for example
// SESSIONCORE_JWT_SECRET or SESSIONCORE_STORE_DSN.
const EnvPrefix = "SESSIONCORE"

// LoadConfig reads path (YAML) over DefaultConfig and applies environment
// overrides. An empty path reads environment only. Ed25519 key files named
// in the config are loaded into JWT.PrivateKey and JWT.PublicKey.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.JWT.PrivateKeyFile != "" {
		b, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = b
	}
	if cfg.JWT.PublicKeyFile != "" {
		b, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = b
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override keys
// the file does not mention.
func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]any{
		"jwt.access_ttl":                    d.JWT.AccessTTL,
		"jwt.refresh_ttl":                   d.JWT.RefreshTTL,
		"jwt.signing_method":                d.JWT.SigningMethod,
		"jwt.secret":                        d.JWT.Secret,
		"jwt.private_key_file":              "",
		"jwt.public_key_file":               "",
		"jwt.key_id":                        d.JWT.KeyID,
		"jwt.issuer":                        d.JWT.Issuer,
		"jwt.audience":                      d.JWT.Audience,
		"jwt.leeway":                        d.JWT.Leeway,
		"refresh.rotate":                    d.Refresh.Rotate,
		"refresh.unparseable_retention":     d.Refresh.UnparseableRetention,
		"rate_limit.enabled":                d.RateLimit.Enabled,
		"rate_limit.backend":                d.RateLimit.Backend,
		"rate_limit.fail_open":              d.RateLimit.FailOpen,
		"rate_limit.key_prefix":             d.RateLimit.KeyPrefix,
		"rate_limit.max_keys":               d.RateLimit.MaxKeys,
		"csrf.ttl":                          d.CSRF.TTL,
		"csrf.cookie_name":                  d.CSRF.CookieName,
		"csrf.header_name":                  d.CSRF.HeaderName,
		"csrf.cookie_path":                  d.CSRF.CookiePath,
		"csrf.domain":                       d.CSRF.Domain,
		"csrf.secure":                       d.CSRF.Secure,
		"cookies.refresh_name":              d.Cookies.RefreshName,
		"cookies.path":                      d.Cookies.Path,
		"cookies.domain":                    d.Cookies.Domain,
		"cookies.secure":                    d.Cookies.Secure,
		"mfa.issuer":                        d.MFA.Issuer,
		"mfa.skew":                          d.MFA.Skew,
		"mfa.backup_code_count":             d.MFA.BackupCodeCount,
		"mfa.backup_code_digits":            d.MFA.BackupCodeDigits,
		"telemetry.timezone":                d.Telemetry.Timezone,
		"telemetry.alert_min_severity":      string(d.Telemetry.Detectors.AlertMinSeverity),
		"telemetry.alerts_per_minute":       d.Telemetry.Detectors.AlertsPerMinute,
		"telemetry.alerts.enabled":          d.Telemetry.Alerts.Dispatcher.Enabled,
		"telemetry.alerts.buffer_size":      d.Telemetry.Alerts.Dispatcher.BufferSize,
		"telemetry.alerts.drop_if_full":     d.Telemetry.Alerts.Dispatcher.DropIfFull,
		"telemetry.alerts.delivery_timeout": d.Telemetry.Alerts.Dispatcher.DeliveryTimeout,
		"telemetry.alerts.webhook_url":      d.Telemetry.Alerts.WebhookURL,
		"telemetry.alerts.kafka_topic":      d.Telemetry.Alerts.KafkaTopic,
		"store.driver":                      d.Store.Driver,
		"store.dsn":                         d.Store.DSN,
		"store.query_timeout":               d.Store.QueryTimeout,
		"redis.addr":                        d.Redis.Addr,
		"redis.password":                    d.Redis.Password,
		"redis.db":                          d.Redis.DB,
		"retention.login_attempts":          d.Retention.LoginAttempts,
		"retention.resolved_events":         d.Retention.ResolvedEvents,
		"retention.sweep_interval":          d.Retention.SweepInterval,
		"password.algorithm":                d.Password.Algorithm,
		"password.bcrypt_cost":              d.Password.BcryptCost,
		"log.level":                         d.Log.Level,
		"log.format":                        d.Log.Format,
		"log.file_path":                     d.Log.FilePath,
		"server.addr":                       d.Server.Addr,
		"server.shutdown_timeout":           d.Server.ShutdownTimeout,
		"server.trust_proxy_headers":        d.Server.TrustProxyHeaders,
		"server.admin_token":                d.Server.AdminToken,
		"metrics.enabled":                   d.Metrics.Enabled,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}
