package telemetry

// Severity ranks a security event. Order matters: escalation only moves up.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Valid reports whether s is one of the four known levels.
func (s Severity) Valid() bool { return s.rank() > 0 }

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool { return s.rank() >= min.rank() }

// Kind names a security event type.
type Kind string

const (
	KindLoginSuccess             Kind = "login_success"
	KindLoginFailure             Kind = "login_failure"
	KindRapidLoginAttempts       Kind = "rapid_login_attempts"
	KindMultipleGeographicLogins Kind = "multiple_geographic_logins"
	KindUnusualTimeLogin         Kind = "unusual_time_login"
	KindIPBlocked                Kind = "ip_blocked"
	KindCSRFValidationFailed     Kind = "csrf_validation_failed"
	KindBackupCodeUsed           Kind = "backup_code_used"
	KindMFAEnabled               Kind = "mfa_enabled"
	KindMFADisabled              Kind = "mfa_disabled"
	KindMFAVerificationFailed    Kind = "mfa_verification_failed"
	KindBackupCodesRegenerated   Kind = "backup_codes_regenerated"
	KindLogout                   Kind = "logout"
	KindRefreshRejected          Kind = "refresh_token_rejected"
	KindRateLimitExceeded        Kind = "rate_limit_exceeded"
	KindUnauthorizedAccess       Kind = "unauthorized_access"
	KindAccountCreated           Kind = "account_created"
	KindMaintenanceSweep         Kind = "maintenance_sweep"
)

// kinds fixes the severity of every known kind.
var kinds = map[Kind]Severity{
	KindLoginSuccess:             SeverityLow,
	KindLoginFailure:             SeverityMedium,
	KindRapidLoginAttempts:       SeverityHigh,
	KindMultipleGeographicLogins: SeverityMedium,
	KindUnusualTimeLogin:         SeverityLow,
	KindIPBlocked:                SeverityHigh,
	KindCSRFValidationFailed:     SeverityHigh,
	KindBackupCodeUsed:           SeverityMedium,
	KindMFAEnabled:               SeverityLow,
	KindMFADisabled:              SeverityMedium,
	KindMFAVerificationFailed:    SeverityMedium,
	KindBackupCodesRegenerated:   SeverityLow,
	KindLogout:                   SeverityLow,
	KindRefreshRejected:          SeverityMedium,
	KindRateLimitExceeded:        SeverityMedium,
	KindUnauthorizedAccess:       SeverityMedium,
	KindAccountCreated:           SeverityLow,
	KindMaintenanceSweep:         SeverityLow,
}

// SeverityOf returns the fixed severity of k and whether k is registered.
func SeverityOf(k Kind) (Severity, bool) {
	s, ok := kinds[k]
	return s, ok
}

// Kinds returns every registered kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	return out
}
