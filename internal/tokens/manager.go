package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/logging"
	"github.com/MrEthical07/sessioncore/internal/reqctx"
	"github.com/MrEthical07/sessioncore/jwt"
	"github.com/MrEthical07/sessioncore/store"
)

const (
	ReasonLogout   = "logout"
	ReasonRotated  = "rotated"
	ReasonAdmin    = "admin"
	ReasonMFAReset = "mfa_reset"

	defaultUnparseableRetention = time.Hour
)

// RevocationStore persists revocation records by token hash.
type RevocationStore interface {
	InsertRevocation(ctx context.Context, rec store.RevokedToken) (bool, error)
	GetRevocation(ctx context.Context, tokenHash string) (store.RevokedToken, error)
	DeleteRevocation(ctx context.Context, tokenHash string) error
	PurgeExpiredRevocations(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttemptStore appends login attempts.
type AttemptStore interface {
	InsertLoginAttempt(ctx context.Context, a store.LoginAttempt) error
}

// AttemptAnalyzer runs anomaly detection over a freshly written attempt.
type AttemptAnalyzer interface {
	AnalyzeLoginAttempt(ctx context.Context, a store.LoginAttempt)
}

// Config tunes revocation and rotation.
type Config struct {
	RotateRefresh bool
	// UnparseableRetention is how long a revocation of a token whose exp
	// cannot be read is kept.
	UnparseableRetention time.Duration
	// Leeway must match the leeway of the jwt.Manager. A revocation stays
	// live until its token is rejected by the parser as expired.
	Leeway time.Duration
}

// Pair is an access and refresh token sharing one session id.
type Pair struct {
	Access        string
	Refresh       string
	SessionID     string
	AccessClaims  *jwt.Claims
	RefreshClaims *jwt.Claims
}

// Revocation is the result of Revoke. AlreadyRevoked is set when the token
// had been revoked before this call.
type Revocation struct {
	store.RevokedToken
	AlreadyRevoked bool
}

// Manager is safe for concurrent use.
type Manager struct {
	jwt         *jwt.Manager
	revocations RevocationStore
	attempts    AttemptStore
	analyzer    AttemptAnalyzer
	clock       clock.Clock
	logger      *zap.Logger
	cfg         Config
	purge       singleflight.Group
}

// New wires a Manager. attempts and analyzer may be nil when login tracking
// is not needed.
func New(j *jwt.Manager, revocations RevocationStore, attempts AttemptStore, analyzer AttemptAnalyzer, clk clock.Clock, logger *zap.Logger, cfg Config) *Manager {
	if cfg.UnparseableRetention <= 0 {
		cfg.UnparseableRetention = defaultUnparseableRetention
	}
	return &Manager{
		jwt:         j,
		revocations: revocations,
		attempts:    attempts,
		analyzer:    analyzer,
		clock:       clock.OrSystem(clk),
		logger:      logging.OrNop(logger),
		cfg:         cfg,
	}
}

// RotationEnabled reports whether RotateRefresh replaces tokens.
func (m *Manager) RotationEnabled() bool {
	return m.cfg.RotateRefresh
}

// Issue signs a token of typ in a fresh session.
func (m *Manager) Issue(subjectID, email string, typ jwt.TokenType) (string, *jwt.Claims, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", nil, err
	}
	return m.jwt.Issue(subjectID, email, typ, sid.String())
}

// IssueForSession signs a token of typ bound to an existing session id.
func (m *Manager) IssueForSession(subjectID, email string, typ jwt.TokenType, sessionID string) (string, *jwt.Claims, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return "", nil, fmt.Errorf("%w: session id: %v", ErrTokenInvalid, err)
	}
	return m.jwt.Issue(subjectID, email, typ, sessionID)
}

// IssuePair signs an access and refresh token for a new session.
func (m *Manager) IssuePair(subjectID, email string) (Pair, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return Pair{}, err
	}
	access, accessClaims, err := m.jwt.Issue(subjectID, email, jwt.TypeAccess, sid.String())
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshClaims, err := m.jwt.Issue(subjectID, email, jwt.TypeRefresh, sid.String())
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:        access,
		Refresh:       refresh,
		SessionID:     sid.String(),
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
	}, nil
}

// Verify checks signature, expiry and type, then the revocation store.
func (m *Manager) Verify(ctx context.Context, token string, typ jwt.TokenType) (*jwt.Claims, error) {
	claims, err := m.parse(token, typ)
	if err != nil {
		return nil, err
	}

	revoked, err := m.IsRevoked(ctx, token, typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Subject returns the subject of a well-signed, unexpired token without
// consulting the revocation store.
func (m *Manager) Subject(token string) (string, bool) {
	claims, err := m.jwt.Parse(token, "")
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// IsRevoked reports whether token has a live revocation record. A record is
// live until its token expiry plus leeway; after that it is deleted on read
// and triggers one collapsed purge of every other expired record.
func (m *Manager) IsRevoked(ctx context.Context, token string, typ jwt.TokenType) (bool, error) {
	hash := internal.HashToken(token)
	rec, err := m.revocations.GetRevocation(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cutoff := m.clock.Now().Add(-m.cfg.Leeway)
	if !rec.ExpiresAt.Before(cutoff) {
		return true, nil
	}

	if err := m.revocations.DeleteRevocation(ctx, hash); err != nil {
		m.logger.Warn("stale revocation cleanup failed", zap.String("token_type", string(typ)), zap.Error(err))
	}
	m.purgeExpired(ctx, cutoff)
	return false, nil
}

func (m *Manager) purgeExpired(ctx context.Context, cutoff time.Time) {
	_, err, _ := m.purge.Do("expired", func() (any, error) {
		n, err := m.revocations.PurgeExpiredRevocations(context.WithoutCancel(ctx), cutoff)
		if err == nil && n > 0 {
			m.logger.Debug("purged expired revocations", zap.Int64("count", n))
		}
		return n, err
	})
	if err != nil {
		m.logger.Warn("expired revocation purge failed", zap.Error(err))
	}
}

// Revoke records token as revoked until its own expiry. Revoking twice is not
// an error; the second call reports AlreadyRevoked.
func (m *Manager) Revoke(ctx context.Context, token, subjectID, reason, initiatedBy string) (Revocation, error) {
	if token == "" {
		return Revocation{}, ErrTokenInvalid
	}
	now := m.clock.Now()
	info := reqctx.FromContext(ctx)

	rec := store.RevokedToken{
		TokenHash: internal.HashToken(token),
		UserID:    subjectID,
		TokenType: "unknown",
		Reason:    reason,
		RevokedBy: initiatedBy,
		RevokedAt: now,
		ExpiresAt: now.Add(m.cfg.UnparseableRetention),
		IPAddress: info.IP,
		UserAgent: info.UserAgent,
	}
	if claims, err := m.jwt.Unverified(token); err == nil {
		if claims.ExpiresAt != nil {
			rec.ExpiresAt = claims.ExpiresAt.Time
		}
		if claims.Type != "" {
			rec.TokenType = string(claims.Type)
		}
		if rec.UserID == "" {
			rec.UserID = claims.Subject
		}
	}
	if rec.RevokedBy == "" {
		rec.RevokedBy = rec.UserID
	}

	inserted, err := m.revocations.InsertRevocation(context.WithoutCancel(ctx), rec)
	if err != nil {
		return Revocation{}, err
	}
	return Revocation{RevokedToken: rec, AlreadyRevoked: !inserted}, nil
}

// RotateRefresh revokes old with reason rotated and then issues its
// replacement in the same session. With rotation disabled old is returned
// unchanged.
func (m *Manager) RotateRefresh(ctx context.Context, old, subjectID, email string) (string, *jwt.Claims, error) {
	claims, err := m.parse(old, jwt.TypeRefresh)
	if err != nil {
		return "", nil, err
	}
	if subjectID != "" && claims.Subject != subjectID {
		return "", nil, ErrTokenInvalid
	}
	if !m.cfg.RotateRefresh {
		return old, claims, nil
	}
	if email == "" {
		email = claims.Email
	}

	rev, err := m.Revoke(ctx, old, claims.Subject, ReasonRotated, claims.Subject)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if rev.AlreadyRevoked {
		return "", nil, ErrTokenRevoked
	}

	return m.jwt.Issue(claims.Subject, email, jwt.TypeRefresh, claims.SessionID)
}

// TrackLoginAttempt appends an attempt with the email hashed and hands it to
// the analyzer. The write survives request cancellation.
func (m *Manager) TrackLoginAttempt(ctx context.Context, email, ip, userAgent string, success bool, reason string) error {
	if m.attempts == nil {
		return nil
	}
	attempt := store.LoginAttempt{
		ID:            uuid.NewString(),
		EmailHash:     internal.HashEmail(email),
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: reason,
		AttemptedAt:   m.clock.Now(),
	}
	if success {
		attempt.FailureReason = ""
	}

	ctx = context.WithoutCancel(ctx)
	if err := m.attempts.InsertLoginAttempt(ctx, attempt); err != nil {
		return err
	}
	if m.analyzer != nil {
		m.analyzer.AnalyzeLoginAttempt(ctx, attempt)
	}
	return nil
}

func (m *Manager) parse(token string, typ jwt.TokenType) (*jwt.Claims, error) {
	claims, err := m.jwt.Parse(token, typ)
	if errors.Is(err, jwt.ErrExpired) {
		return nil, ErrTokenExpired
	}
	if err != nil {
		return nil, ErrTokenInvalid
	}
	// Every token this package signs carries a session id of NewSessionID's shape.
	if _, err := internal.ParseSessionID(claims.SessionID); err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
