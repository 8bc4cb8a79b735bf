package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Login   LoginDeps
	Signup  SignupDeps
	Refresh RefreshDeps
	Logout  LogoutDeps
}

// User is the flow-local account model.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	MFAEnabled   bool
	TOTPSecret   string
}

// Claims is the flow-local view of a verified token.
type Claims struct {
	SubjectID string
	Email     string
	SessionID string
	ExpiresAt time.Time
}

// Session is everything a client receives after login, signup or refresh.
// RefreshToken is empty on refresh when rotation is disabled.
type Session struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
	CSRFExpiresAt    time.Time
}

// RecordFunc writes a security event. Failures are the callee's to log.
type RecordFunc func(ctx context.Context, kind, subjectID string, detail map[string]any)

func nopRecord(context.Context, string, string, map[string]any) {}

func nopMetric(int) {}
