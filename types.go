package sessioncore

import (
	"time"

	"github.com/MrEthical07/sessioncore/internal/audit"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/mfa"
	"github.com/MrEthical07/sessioncore/internal/rate"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/store"
)

// TokenTypeBearer is reported with every issued access token.
const TokenTypeBearer = "Bearer"

type (
	// Clock supplies the current time to every component.
	Clock = clock.Clock

	// AlertSink receives security events at or above the alert threshold.
	AlertSink  = audit.Sink
	AlertEvent = audit.Event

	RateLimitDecision = rate.Decision
	RateLimitBackend  = rate.Backend

	EventKind     = telemetry.Kind
	EventSeverity = telemetry.Severity
	SecurityEvent = telemetry.Event
	EventFilter   = telemetry.Filter

	MFAEnrollment = mfa.Enrollment
	SweepResult   = store.SweepResult
)

// LoginRequest carries credentials and an optional second factor. Client
// address and user agent come from the context.
type LoginRequest struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string
}

// UserView is the account data safe to return to a client.
type UserView struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

// SessionResult is returned by Login, Signup and Refresh. RefreshToken is
// empty after a refresh when rotation is disabled; the client keeps its
// current one.
type SessionResult struct {
	User             UserView
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
	CSRFExpiresAt    time.Time
	TokenType        string
}

// ExpiresIn is the remaining access token lifetime in whole seconds at now.
func (r *SessionResult) ExpiresIn(now time.Time) int64 {
	if r == nil || !r.AccessExpiresAt.After(now) {
		return 0
	}
	return int64(r.AccessExpiresAt.Sub(now) / time.Second)
}

// Principal is the verified identity behind an access token.
type Principal struct {
	UserID    string
	Email     string
	SessionID string
	ExpiresAt time.Time
}

// LogoutResult reports what Logout revoked. Logout never fails the client;
// Err is for the caller's logs.
type LogoutResult struct {
	UserID  string
	Revoked int
	Err     error
}
