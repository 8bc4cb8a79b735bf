package internaldefs

import (
	"github.com/MrEthical07/sessioncore"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   sessioncore.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   sessioncore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: sessioncore.MetricLoginSuccess, Name: "sessioncore_login_success_total", Help: "Successful logins."},
	{ID: sessioncore.MetricLoginFailure, Name: "sessioncore_login_failure_total", Help: "Failed logins."},
	{ID: sessioncore.MetricLoginBlocked, Name: "sessioncore_login_blocked_total", Help: "Logins refused because the client address was blocked."},
	{ID: sessioncore.MetricMFARequired, Name: "sessioncore_mfa_required_total", Help: "Logins refused for a missing second factor."},
	{ID: sessioncore.MetricMFAFailure, Name: "sessioncore_mfa_failure_total", Help: "Failed second factor verifications."},
	{ID: sessioncore.MetricSessionCreated, Name: "sessioncore_session_created_total", Help: "Sessions opened."},
	{ID: sessioncore.MetricRefreshSuccess, Name: "sessioncore_refresh_success_total", Help: "Successful refreshes."},
	{ID: sessioncore.MetricRefreshFailure, Name: "sessioncore_refresh_failure_total", Help: "Rejected refreshes."},
	{ID: sessioncore.MetricRefreshReuseDetected, Name: "sessioncore_refresh_reuse_detected_total", Help: "Refresh tokens presented after revocation."},
	{ID: sessioncore.MetricLogout, Name: "sessioncore_logout_total", Help: "Logouts that revoked at least one token."},
	{ID: sessioncore.MetricAccountCreated, Name: "sessioncore_account_created_total", Help: "Accounts created."},
	{ID: sessioncore.MetricAccountDuplicate, Name: "sessioncore_account_duplicate_total", Help: "Signups rejected for an existing email."},
	{ID: sessioncore.MetricRateLimitAllowed, Name: "sessioncore_rate_limit_allowed_total", Help: "Requests admitted by the rate limiter."},
	{ID: sessioncore.MetricRateLimitDenied, Name: "sessioncore_rate_limit_denied_total", Help: "Requests denied by the rate limiter."},
	{ID: sessioncore.MetricRateLimitFailOpen, Name: "sessioncore_rate_limit_fail_open_total", Help: "Requests admitted because the rate limit backend failed."},
	{ID: sessioncore.MetricCSRFFailure, Name: "sessioncore_csrf_failure_total", Help: "Failed CSRF validations."},
	{ID: sessioncore.MetricAuthFailure, Name: "sessioncore_auth_failure_total", Help: "Rejected access tokens."},
	{ID: sessioncore.MetricMFAEnabled, Name: "sessioncore_mfa_enabled_total", Help: "MFA enrollments confirmed."},
	{ID: sessioncore.MetricMFADisabled, Name: "sessioncore_mfa_disabled_total", Help: "MFA disabled."},
	{ID: sessioncore.MetricBackupCodeUsed, Name: "sessioncore_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: sessioncore.MetricBackupCodeRegenerated, Name: "sessioncore_backup_code_regenerated_total", Help: "Backup code sets regenerated."},
	{ID: sessioncore.MetricSweepRun, Name: "sessioncore_sweep_runs_total", Help: "Maintenance sweeps run."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: sessioncore.MetricValidateLatency, Name: "sessioncore_validate_latency_seconds", Help: "Access token verification latency."},
}

const (
	// SecurityEventsName counts recorded security events by kind and severity.
	SecurityEventsName = "sessioncore_security_events_total"
	SecurityEventsHelp = "Recorded security events."

	AlertsDroppedName = "sessioncore_alerts_dropped_total"
	AlertsDroppedHelp = "Alerts dropped because the dispatcher buffer was full."
)

// HistogramUpperBounds are the bucket bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
