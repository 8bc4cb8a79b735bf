package flows

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/logging"
)

// Failure reasons stored on login attempts.
const (
	ReasonIPBlocked          = "ip_blocked"
	ReasonEmptyCredentials   = "empty_credentials"
	ReasonUserNotFound       = "user_not_found"
	ReasonInvalidPassword    = "invalid_password"
	ReasonMFARequired        = "mfa_required"
	ReasonMFAInvalid         = "mfa_invalid"
	ReasonStoreError         = "store_error"
	ReasonSessionIssueFailed = "session_issue_failed"
)

type LoginRequest struct {
	Email      string
	Password   string
	TOTPCode   string
	BackupCode string
	IP         string
	UserAgent  string
}

type LoginResult struct {
	User    User
	Session Session
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess   int
	LoginFailure   int
	LoginBlocked   int
	MFARequired    int
	MFAFailure     int
	SessionCreated int
}

// LoginEvents carries security event kinds emitted by the login flow.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	IPBlocked          error
	UserNotFound       error
	MFARequired        error
	MFAInvalid         error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	IsIPBlocked    func(ctx context.Context, ip string) (bool, error)
	GetUserByEmail func(ctx context.Context, email string) (User, error)
	VerifyPassword func(password, hash string) (bool, error)
	DummyVerify    func(password string)
	VerifyMFA      func(ctx context.Context, u User, totpCode, backupCode string) error
	IssueSession   func(ctx context.Context, u User) (Session, error)
	TrackAttempt   func(ctx context.Context, email, ip, userAgent string, success bool, reason string)

	Record    RecordFunc
	MetricInc func(int)
	Logger    *zap.Logger

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin checks the address block, the password and the second factor, then
// issues a session. Every outcome is tracked as a login attempt. Callers only
// ever see InvalidCredentials for a bad email or password.
func RunLogin(ctx context.Context, req LoginRequest, deps LoginDeps) (*LoginResult, error) {
	if deps.GetUserByEmail == nil ||
		deps.VerifyPassword == nil ||
		deps.DummyVerify == nil ||
		deps.IssueSession == nil ||
		deps.TrackAttempt == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.Record == nil {
		deps.Record = nopRecord
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}
	logger := logging.OrNop(deps.Logger)
	email := strings.TrimSpace(req.Email)

	fail := func(subjectID, reason string, err error) (*LoginResult, error) {
		deps.TrackAttempt(ctx, email, req.IP, req.UserAgent, false, reason)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.Record(ctx, deps.Events.LoginFailure, subjectID, map[string]any{"reason": reason})
		return nil, err
	}

	if deps.IsIPBlocked != nil && req.IP != "" {
		blocked, err := deps.IsIPBlocked(ctx, req.IP)
		if err != nil {
			logger.Warn("ip block check failed", zap.Error(err))
		}
		if blocked {
			deps.MetricInc(deps.Metrics.LoginBlocked)
			return fail("", ReasonIPBlocked, deps.Errors.IPBlocked)
		}
	}

	if email == "" || req.Password == "" {
		deps.DummyVerify(req.Password)
		return fail("", ReasonEmptyCredentials, deps.Errors.InvalidCredentials)
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		deps.DummyVerify(req.Password)
		if errors.Is(err, deps.Errors.UserNotFound) {
			return fail("", ReasonUserNotFound, deps.Errors.InvalidCredentials)
		}
		return fail("", ReasonStoreError, err)
	}

	ok, err := deps.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		logger.Error("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err != nil || !ok {
		return fail(user.ID, ReasonInvalidPassword, deps.Errors.InvalidCredentials)
	}

	if user.MFAEnabled && deps.VerifyMFA != nil {
		if err := deps.VerifyMFA(ctx, user, req.TOTPCode, req.BackupCode); err != nil {
			if errors.Is(err, deps.Errors.MFARequired) {
				deps.MetricInc(deps.Metrics.MFARequired)
				return fail(user.ID, ReasonMFARequired, err)
			}
			deps.MetricInc(deps.Metrics.MFAFailure)
			if errors.Is(err, deps.Errors.MFAInvalid) {
				return fail(user.ID, ReasonMFAInvalid, err)
			}
			return fail(user.ID, ReasonStoreError, err)
		}
	}

	session, err := deps.IssueSession(ctx, user)
	if err != nil {
		return fail(user.ID, ReasonSessionIssueFailed, err)
	}

	deps.TrackAttempt(ctx, email, req.IP, req.UserAgent, true, "")
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.Record(ctx, deps.Events.LoginSuccess, user.ID, map[string]any{"sessionId": session.SessionID})

	user.PasswordHash = ""
	user.TOTPSecret = ""
	return &LoginResult{User: user, Session: session}, nil
}
