package sessioncore

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/audit"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/csrf"
	"github.com/MrEthical07/sessioncore/internal/flows"
	"github.com/MrEthical07/sessioncore/internal/mfa"
	"github.com/MrEthical07/sessioncore/internal/rate"
	"github.com/MrEthical07/sessioncore/internal/reqctx"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/internal/tokens"
	"github.com/MrEthical07/sessioncore/jwt"
	"github.com/MrEthical07/sessioncore/password"
	"github.com/MrEthical07/sessioncore/store"
)

// Engine composes the token manager, rate limiter, CSRF guard, MFA engine
// and telemetry pipeline into session flows. It is safe for concurrent use
// once built.
type Engine struct {
	config    Config
	store     *store.Store
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *Metrics
	mailer    Mailer
	tokens    *tokens.Manager
	limiter   *rate.Limiter
	csrf      *csrf.Guard
	mfa       *mfa.Engine
	telemetry *telemetry.Pipeline
	hasher    password.Hasher
	alerts    *audit.Dispatcher
	closers   []func() error
	flows     flows.Deps
}

// Close drains pending alerts and releases alert writers. The store is owned
// by the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.alerts != nil {
		e.alerts.Close()
	}
	for _, c := range e.closers {
		if err := c(); err != nil {
			e.logger.Warn("alert sink close failed", zap.Error(err))
		}
	}
	e.closers = nil
}

func (e *Engine) Config() Config { return e.config }

// Now is the engine clock.
func (e *Engine) Now() time.Time { return e.clock.Now() }

func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

// AlertsDropped reports alerts discarded because the dispatcher was full.
func (e *Engine) AlertsDropped() uint64 {
	if e == nil || e.alerts == nil {
		return 0
	}
	return e.alerts.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the store connection.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return e.store.Ping(ctx)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies credentials and the second factor and opens a session. The
// attempt is always recorded, with the client address and user agent taken
// from ctx.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*SessionResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	info := reqctx.FromContext(ctx)
	res, err := flows.RunLogin(ctx, flows.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		BackupCode: req.BackupCode,
		IP:         info.IP,
		UserAgent:  info.UserAgent,
	}, e.flows.Login)
	if err != nil {
		return nil, err
	}
	return sessionResult(res.User, res.Session), nil
}

// Signup creates an account and logs it in. The welcome mail is sent in the
// background and never fails the request.
func (e *Engine) Signup(ctx context.Context, email, pass string) (*SessionResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	u, err := flows.RunSignup(ctx, flows.SignupRequest{Email: email, Password: pass}, e.flows.Signup)
	if err != nil {
		return nil, err
	}
	return e.Login(ctx, LoginRequest{Email: u.Email, Password: pass})
}

// Refresh exchanges a refresh token for a new access token and CSRF token.
// With rotation enabled the refresh token is replaced and presenting the old
// one again returns ErrTokenRevoked. CSRF is validated by the caller.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*SessionResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	s, err := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if err != nil {
		return nil, err
	}
	res := sessionResult(flows.User{}, *s)
	res.User.ID = e.subjectOf(refreshToken)
	return res, nil
}

// Logout revokes both tokens and every CSRF token of the user. It never fails
// the client; problems are logged and reported in the result.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) LogoutResult {
	if e == nil || e.tokens == nil {
		return LogoutResult{Err: ErrEngineNotReady}
	}
	r := flows.RunLogout(ctx, accessToken, refreshToken, e.flows.Logout)
	return LogoutResult{UserID: r.SubjectID, Revoked: r.Revoked, Err: r.Err}
}

// Authenticate verifies an access token for a protected route. Invalid and
// revoked tokens are recorded as unauthorized access; an expired token is
// not, as it is the normal end of a session.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if accessToken == "" {
		e.metricInc(MetricAuthFailure)
		return nil, ErrUnauthorized
	}

	start := time.Now()
	claims, err := e.tokens.Verify(ctx, accessToken, jwt.TypeAccess)
	e.metrics.Observe(MetricValidateLatency, time.Since(start))
	if err != nil {
		e.metricInc(MetricAuthFailure)
		switch {
		case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenRevoked):
			e.record(ctx, telemetry.KindUnauthorizedAccess, "", map[string]any{"reason": authReason(err)})
		case errors.Is(err, ErrRevocationUnavailable):
			e.logger.Error("revocation lookup failed", zap.Error(err))
		}
		return nil, err
	}

	p := &Principal{UserID: claims.Subject, Email: claims.Email, SessionID: claims.SessionID}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

func authReason(err error) string {
	if errors.Is(err, ErrTokenRevoked) {
		return "revoked"
	}
	return "invalid"
}

// RevokeToken revokes a single token on behalf of an administrator.
func (e *Engine) RevokeToken(ctx context.Context, token, initiatedBy string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	_, err := e.tokens.Revoke(ctx, token, "", tokens.ReasonAdmin, initiatedBy)
	return err
}

func (e *Engine) subjectOf(token string) string {
	sub, _ := e.tokens.Subject(token)
	return sub
}

/*
====================================
COOKIES
====================================
*/

// RefreshCookie carries the refresh token. It is HttpOnly, Secure per
// configuration and SameSite=Strict.
func (e *Engine) RefreshCookie(token string, expiresAt time.Time) *http.Cookie {
	c := e.config.Cookies
	maxAge := int(expiresAt.Sub(e.clock.Now()) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     c.RefreshName,
		Value:    token,
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  expiresAt,
		MaxAge:   maxAge,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (e *Engine) ClearRefreshCookie() *http.Cookie {
	c := e.config.Cookies
	return &http.Cookie{
		Name:     c.RefreshName,
		Value:    "",
		Path:     c.Path,
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (e *Engine) RefreshCookieName() string { return e.config.Cookies.RefreshName }

// CSRFCookie carries a CSRF token. Scripts can read it to echo the value in
// the CSRF header.
func (e *Engine) CSRFCookie(token string, expiresAt time.Time) *http.Cookie {
	return e.csrf.Cookie(csrf.Token{Value: token, ExpiresAt: expiresAt})
}

func (e *Engine) ClearCSRFCookie() *http.Cookie { return e.csrf.ClearCookie() }

func (e *Engine) CSRFHeaderName() string { return e.csrf.HeaderName() }

/*
====================================
FLOW WIRING
====================================
*/

func sessionResult(u flows.User, s flows.Session) *SessionResult {
	return &SessionResult{
		User:             UserView{ID: u.ID, Email: u.Email, MFAEnabled: u.MFAEnabled},
		SessionID:        s.SessionID,
		AccessToken:      s.AccessToken,
		AccessExpiresAt:  s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
		CSRFToken:        s.CSRFToken,
		CSRFExpiresAt:    s.CSRFExpiresAt,
		TokenType:        TokenTypeBearer,
	}
}

func flowUser(u store.User) flows.User {
	return flows.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		MFAEnabled:   u.MFAEnabled,
		TOTPSecret:   u.TOTPSecret,
	}
}

func flowClaims(c *jwt.Claims) flows.Claims {
	out := flows.Claims{SubjectID: c.Subject, Email: c.Email, SessionID: c.SessionID}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

// record writes a security event. Failures are logged and swallowed.
func (e *Engine) record(ctx context.Context, kind telemetry.Kind, subjectID string, detail map[string]any) {
	if e.telemetry == nil {
		return
	}
	err := e.telemetry.Record(ctx, telemetry.Entry{Kind: kind, SubjectID: subjectID, Detail: detail})
	if err != nil {
		e.logger.Warn("security event write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (e *Engine) recordFunc() flows.RecordFunc {
	return func(ctx context.Context, kind, subjectID string, detail map[string]any) {
		e.record(ctx, telemetry.Kind(kind), subjectID, detail)
	}
}

func (e *Engine) metricFunc() func(int) {
	return func(id int) { e.metricInc(MetricID(id)) }
}

func (e *Engine) issueSession(ctx context.Context, u flows.User) (flows.Session, error) {
	pair, err := e.tokens.IssuePair(u.ID, u.Email)
	if err != nil {
		return flows.Session{}, err
	}
	tok, err := e.csrf.Generate(ctx, u.ID)
	if err != nil {
		return flows.Session{}, err
	}
	s := flows.Session{
		SessionID:     pair.SessionID,
		AccessToken:   pair.Access,
		RefreshToken:  pair.Refresh,
		CSRFToken:     tok.Value,
		CSRFExpiresAt: tok.ExpiresAt,
	}
	if pair.AccessClaims.ExpiresAt != nil {
		s.AccessExpiresAt = pair.AccessClaims.ExpiresAt.Time
	}
	if pair.RefreshClaims.ExpiresAt != nil {
		s.RefreshExpiresAt = pair.RefreshClaims.ExpiresAt.Time
	}
	return s, nil
}

func (e *Engine) buildFlows() flows.Deps {
	record := e.recordFunc()
	inc := e.metricFunc()

	login := flows.LoginDeps{
		IsIPBlocked: func(ctx context.Context, ip string) (bool, error) {
			blocked, _, err := e.telemetry.IsIPBlocked(ctx, ip)
			return blocked, err
		},
		GetUserByEmail: func(ctx context.Context, email string) (flows.User, error) {
			u, err := e.store.GetUserByEmail(ctx, email)
			if err != nil {
				return flows.User{}, err
			}
			return flowUser(u), nil
		},
		VerifyPassword: e.hasher.Verify,
		DummyVerify:    e.hasher.DummyVerify,
		VerifyMFA: func(ctx context.Context, u flows.User, totpCode, backupCode string) error {
			return e.mfa.VerifyLogin(ctx, store.User{
				ID:         u.ID,
				Email:      u.Email,
				MFAEnabled: u.MFAEnabled,
				TOTPSecret: u.TOTPSecret,
			}, totpCode, backupCode)
		},
		IssueSession: e.issueSession,
		TrackAttempt: func(ctx context.Context, email, ip, userAgent string, success bool, reason string) {
			if err := e.tokens.TrackLoginAttempt(ctx, email, ip, userAgent, success, reason); err != nil {
				e.logger.Warn("login attempt write failed", zap.Error(err))
			}
		},
		Record:    record,
		MetricInc: inc,
		Logger:    e.logger,
		Metrics: flows.LoginMetrics{
			LoginSuccess:   int(MetricLoginSuccess),
			LoginFailure:   int(MetricLoginFailure),
			LoginBlocked:   int(MetricLoginBlocked),
			MFARequired:    int(MetricMFARequired),
			MFAFailure:     int(MetricMFAFailure),
			SessionCreated: int(MetricSessionCreated),
		},
		Events: flows.LoginEvents{
			LoginSuccess: string(telemetry.KindLoginSuccess),
			LoginFailure: string(telemetry.KindLoginFailure),
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			IPBlocked:          ErrIPBlocked,
			UserNotFound:       store.ErrNotFound,
			MFARequired:        ErrMFARequired,
			MFAInvalid:         ErrMFAInvalidCode,
		},
	}

	signup := flows.SignupDeps{
		CheckPassword: e.config.Password.Policy.Check,
		HashPassword:  e.hasher.Hash,
		NewUserID:     uuid.NewString,
		CreateUser: func(ctx context.Context, u flows.User) error {
			return e.store.CreateUser(ctx, store.User{
				ID:           u.ID,
				Email:        u.Email,
				PasswordHash: u.PasswordHash,
				CreatedAt:    e.clock.Now(),
			})
		},
		Record:       record,
		MetricInc:    inc,
		Logger:       e.logger,
		CreatedEvent: string(telemetry.KindAccountCreated),
		Metrics: flows.SignupMetrics{
			AccountCreated:   int(MetricAccountCreated),
			AccountDuplicate: int(MetricAccountDuplicate),
		},
		Errors: flows.SignupErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidEmail:   ErrInvalidEmail,
			AccountExists:  ErrAccountExists,
			Conflict:       store.ErrConflict,
		},
	}
	if e.mailer != nil {
		signup.SendWelcome = e.mailer.SendWelcome
	}

	refresh := flows.RefreshDeps{
		VerifyRefresh: func(ctx context.Context, token string) (flows.Claims, error) {
			c, err := e.tokens.Verify(ctx, token, jwt.TypeRefresh)
			if err != nil {
				return flows.Claims{}, err
			}
			return flowClaims(c), nil
		},
		Rotate: func(ctx context.Context, old string, c flows.Claims) (string, flows.Claims, error) {
			next, claims, err := e.tokens.RotateRefresh(ctx, old, c.SubjectID, c.Email)
			if err != nil {
				return "", flows.Claims{}, err
			}
			return next, flowClaims(claims), nil
		},
		IssueAccess: func(_ context.Context, c flows.Claims) (string, flows.Claims, error) {
			tok, claims, err := e.tokens.IssueForSession(c.SubjectID, c.Email, jwt.TypeAccess, c.SessionID)
			if err != nil {
				return "", flows.Claims{}, err
			}
			return tok, flowClaims(claims), nil
		},
		GenerateCSRF: func(ctx context.Context, subjectID string) (flows.Session, error) {
			tok, err := e.csrf.Generate(ctx, subjectID)
			if err != nil {
				return flows.Session{}, err
			}
			return flows.Session{CSRFToken: tok.Value, CSRFExpiresAt: tok.ExpiresAt}, nil
		},
		Record:        record,
		MetricInc:     inc,
		RejectedEvent: string(telemetry.KindRefreshRejected),
		Metrics: flows.RefreshMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
			RefreshReuse:   int(MetricRefreshReuseDetected),
		},
		Errors: flows.RefreshErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenInvalid,
			TokenExpired:   ErrTokenExpired,
			TokenRevoked:   ErrTokenRevoked,
		},
	}

	logout := flows.LogoutDeps{
		VerifyAccess: func(ctx context.Context, token string) (flows.Claims, error) {
			c, err := e.tokens.Verify(ctx, token, jwt.TypeAccess)
			if err != nil {
				return flows.Claims{}, err
			}
			return flowClaims(c), nil
		},
		UnverifiedSubject: e.subjectOf,
		RevokeToken: func(ctx context.Context, token, subjectID string) error {
			_, err := e.tokens.Revoke(ctx, token, subjectID, tokens.ReasonLogout, subjectID)
			return err
		},
		RevokeCSRF: func(ctx context.Context, subjectID string) error {
			_, err := e.csrf.RevokeAllForUser(ctx, subjectID)
			return err
		},
		Record:       record,
		MetricInc:    inc,
		Logger:       e.logger,
		LogoutEvent:  string(telemetry.KindLogout),
		LogoutMetric: int(MetricLogout),
	}

	return flows.Deps{Login: login, Signup: signup, Refresh: refresh, Logout: logout}
}
