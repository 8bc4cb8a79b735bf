package security

import "time"

// Report summarizes which protections an engine runs with. It holds no
// secrets and is safe to expose to operators.
type Report struct {
	SigningAlgorithm       string        `json:"signingAlgorithm"`
	AccessTTL              time.Duration `json:"accessTtl"`
	RefreshTTL             time.Duration `json:"refreshTtl"`
	PasswordAlgorithm      string        `json:"passwordAlgorithm"`
	RefreshRotationEnabled bool          `json:"refreshRotation"`
	ReuseDetectionEnabled  bool          `json:"reuseDetection"`
	RateLimitingActive     bool          `json:"rateLimiting"`
	RateLimitBackend       string        `json:"rateLimitBackend,omitempty"`
	RateLimitFailOpen      bool          `json:"rateLimitFailOpen"`
	BruteForceActive       bool          `json:"bruteForceBlocking"`
	CSRFTTL                time.Duration `json:"csrfTtl"`
	BackupCodesEnabled     bool          `json:"backupCodes"`
	SecureCookies          bool          `json:"secureCookies"`
	AlertsActive           bool          `json:"alerts"`
	Warnings               []string      `json:"warnings,omitempty"`
}

type ReportInput struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	PasswordAlgorithm   string
	RefreshRotation     bool
	RateLimitEnabled    bool
	RateLimitBackend    string
	RateLimitFailOpen   bool
	BruteThreshold      int
	BlockDuration       time.Duration
	CSRFTTL             time.Duration
	BackupCodeCount     int
	RefreshCookieSecure bool
	CSRFCookieSecure    bool
	AlertsEnabled       bool
}

// maxAccessTTL is the longest access lifetime reported without a warning.
const maxAccessTTL = time.Hour

func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		PasswordAlgorithm:      input.PasswordAlgorithm,
		RefreshRotationEnabled: input.RefreshRotation,
		ReuseDetectionEnabled:  input.RefreshRotation,
		RateLimitingActive:     input.RateLimitEnabled,
		RateLimitFailOpen:      input.RateLimitEnabled && input.RateLimitFailOpen,
		BruteForceActive:       input.BruteThreshold > 0 && input.BlockDuration > 0,
		CSRFTTL:                input.CSRFTTL,
		BackupCodesEnabled:     input.BackupCodeCount > 0,
		SecureCookies:          input.RefreshCookieSecure && input.CSRFCookieSecure,
		AlertsActive:           input.AlertsEnabled,
	}
	if input.RateLimitEnabled {
		r.RateLimitBackend = input.RateLimitBackend
	}

	if !r.SecureCookies {
		r.Warnings = append(r.Warnings, "cookies are sent without the Secure attribute")
	}
	if !r.RefreshRotationEnabled {
		r.Warnings = append(r.Warnings, "refresh tokens are not rotated; reuse goes undetected")
	}
	if !r.RateLimitingActive {
		r.Warnings = append(r.Warnings, "request rate limiting is disabled")
	}
	if !r.BruteForceActive {
		r.Warnings = append(r.Warnings, "failed logins never block the client address")
	}
	if input.AccessTTL > maxAccessTTL {
		r.Warnings = append(r.Warnings, "access tokens live longer than one hour")
	}
	return r
}
