package flows

import (
	"context"
	"errors"
)

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess int
	RefreshFailure int
	RefreshReuse   int
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	EngineNotReady error
	TokenInvalid   error
	TokenExpired   error
	TokenRevoked   error
}

// RefreshDeps captures refresh dependencies. CSRF is checked by the caller
// before the flow runs.
type RefreshDeps struct {
	VerifyRefresh func(ctx context.Context, token string) (Claims, error)
	// Rotate revokes old and returns its replacement. With rotation disabled
	// it returns old unchanged.
	Rotate       func(ctx context.Context, old string, c Claims) (string, Claims, error)
	IssueAccess  func(ctx context.Context, c Claims) (string, Claims, error)
	GenerateCSRF func(ctx context.Context, subjectID string) (Session, error)

	Record    RecordFunc
	MetricInc func(int)

	RejectedEvent string
	Metrics       RefreshMetrics
	Errors        RefreshErrors
}

// RunRefresh exchanges a refresh token for a new access token and CSRF
// token, rotating the refresh token when enabled.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*Session, error) {
	if deps.VerifyRefresh == nil ||
		deps.Rotate == nil ||
		deps.IssueAccess == nil ||
		deps.GenerateCSRF == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.Record == nil {
		deps.Record = nopRecord
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}

	reject := func(subjectID, reason string, err error) (*Session, error) {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		if errors.Is(err, deps.Errors.TokenRevoked) {
			deps.MetricInc(deps.Metrics.RefreshReuse)
		}
		deps.Record(ctx, deps.RejectedEvent, subjectID, map[string]any{"reason": reason})
		return nil, err
	}

	if refreshToken == "" {
		return reject("", "missing", deps.Errors.TokenInvalid)
	}

	claims, err := deps.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return reject("", reasonFor(err, deps.Errors), err)
	}

	next, nextClaims, err := deps.Rotate(ctx, refreshToken, claims)
	if err != nil {
		return reject(claims.SubjectID, reasonFor(err, deps.Errors), err)
	}

	access, accessClaims, err := deps.IssueAccess(ctx, claims)
	if err != nil {
		return nil, err
	}
	out, err := deps.GenerateCSRF(ctx, claims.SubjectID)
	if err != nil {
		return nil, err
	}

	out.SessionID = claims.SessionID
	out.AccessToken = access
	out.AccessExpiresAt = accessClaims.ExpiresAt
	if next != refreshToken {
		out.RefreshToken = next
		out.RefreshExpiresAt = nextClaims.ExpiresAt
	}
	deps.MetricInc(deps.Metrics.RefreshSuccess)
	return &out, nil
}

func reasonFor(err error, errs RefreshErrors) string {
	switch {
	case errors.Is(err, errs.TokenRevoked):
		return "revoked"
	case errors.Is(err, errs.TokenExpired):
		return "expired"
	case errors.Is(err, errs.TokenInvalid):
		return "invalid"
	}
	return "error"
}
