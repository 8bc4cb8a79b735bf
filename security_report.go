package sessioncore

import "github.com/MrEthical07/sessioncore/internal/security"

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// SecurityReport describes the protections this engine was built with,
// plus warnings for weakened settings.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return e.config.SecurityReport()
}

// SecurityReport describes the posture an engine built from c would have.
func (c Config) SecurityReport() SecurityReport {
	backend := c.RateLimit.Backend
	if backend == "" {
		backend = "memory"
	}
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:    c.JWT.SigningMethod,
		AccessTTL:           c.JWT.AccessTTL,
		RefreshTTL:          c.JWT.RefreshTTL,
		PasswordAlgorithm:   c.Password.Algorithm,
		RefreshRotation:     c.Refresh.Rotate,
		RateLimitEnabled:    c.RateLimit.Enabled,
		RateLimitBackend:    backend,
		RateLimitFailOpen:   c.RateLimit.FailOpen,
		BruteThreshold:      c.Telemetry.Detectors.BruteThreshold,
		BlockDuration:       c.Telemetry.Detectors.BlockDuration,
		CSRFTTL:             c.CSRF.TTL,
		BackupCodeCount:     c.MFA.BackupCodeCount,
		RefreshCookieSecure: c.Cookies.Secure,
		CSRFCookieSecure:    c.CSRF.Secure,
		AlertsEnabled:       c.Telemetry.Alerts.Dispatcher.Enabled,
	})
}
