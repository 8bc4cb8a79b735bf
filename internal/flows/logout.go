package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/logging"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	// VerifyAccess is best-effort; an error only means the subject is taken
	// from another source.
	VerifyAccess      func(ctx context.Context, token string) (Claims, error)
	UnverifiedSubject func(token string) string
	RevokeToken       func(ctx context.Context, token, subjectID string) error
	RevokeCSRF        func(ctx context.Context, subjectID string) error

	Record    RecordFunc
	MetricInc func(int)
	Logger    *zap.Logger

	LogoutEvent  string
	LogoutMetric int
}

// LogoutResult reports what logout managed to do. Err joins every internal
// failure; callers log it and still report success.
type LogoutResult struct {
	SubjectID string
	Revoked   int
	Err       error
}

// RunLogout revokes the access and refresh tokens and every CSRF token of the
// subject. Nothing here fails the client: an invalid or expired access token
// still leads to revocation of whatever was presented.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) LogoutResult {
	if deps.Record == nil {
		deps.Record = nopRecord
	}
	if deps.MetricInc == nil {
		deps.MetricInc = nopMetric
	}
	logger := logging.OrNop(deps.Logger)
	ctx = context.WithoutCancel(ctx)

	var res LogoutResult
	if accessToken != "" && deps.VerifyAccess != nil {
		if c, err := deps.VerifyAccess(ctx, accessToken); err == nil {
			res.SubjectID = c.SubjectID
		}
	}
	if res.SubjectID == "" && deps.UnverifiedSubject != nil {
		for _, tok := range []string{accessToken, refreshToken} {
			if tok == "" {
				continue
			}
			if sub := deps.UnverifiedSubject(tok); sub != "" {
				res.SubjectID = sub
				break
			}
		}
	}

	var errs []error
	if deps.RevokeToken != nil {
		for _, tok := range []string{accessToken, refreshToken} {
			if tok == "" {
				continue
			}
			if err := deps.RevokeToken(ctx, tok, res.SubjectID); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Revoked++
		}
	}
	if res.SubjectID != "" && deps.RevokeCSRF != nil {
		if err := deps.RevokeCSRF(ctx, res.SubjectID); err != nil {
			errs = append(errs, err)
		}
	}

	res.Err = errors.Join(errs...)
	if res.Err != nil {
		logger.Warn("logout completed with errors", zap.String("user_id", res.SubjectID), zap.Error(res.Err))
	}
	if res.Revoked > 0 {
		deps.MetricInc(deps.LogoutMetric)
		deps.Record(ctx, deps.LogoutEvent, res.SubjectID, map[string]any{"revoked": res.Revoked})
	}
	return res
}
