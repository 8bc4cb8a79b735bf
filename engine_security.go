package sessioncore

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/rate"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/store"
)

/*
====================================
RATE LIMITING
====================================
*/

// RateLimitEnabled reports whether CheckRateLimit does anything.
func (e *Engine) RateLimitEnabled() bool {
	return e != nil && e.limiter != nil
}

// RateLimitIdentifier keys a request by the subject of a well-signed bearer
// token, falling back to the client address. The token is not checked
// against revocations; throttling only needs a stable key.
func (e *Engine) RateLimitIdentifier(bearer, ip string) string {
	var sub string
	if bearer != "" && e != nil && e.tokens != nil {
		sub, _ = e.tokens.Subject(bearer)
	}
	return rate.Identifier(sub, ip)
}

// CheckRateLimit counts one request. A denied request returns the decision
// together with ErrRateLimited; only the first denial per identifier and
// window is recorded as a security event. With fail-open disabled a backend outage
// returns ErrRateLimitUnavailable.
func (e *Engine) CheckRateLimit(ctx context.Context, identifier, path, method string) (RateLimitDecision, error) {
	if e == nil || e.limiter == nil {
		return RateLimitDecision{Allowed: true}, nil
	}
	d, err := e.limiter.Check(ctx, identifier, path, method)
	if err != nil {
		e.metricInc(MetricRateLimitDenied)
		return d, err
	}
	if d.FailedOpen {
		e.metricInc(MetricRateLimitFailOpen)
	}
	if d.Allowed {
		e.metricInc(MetricRateLimitAllowed)
		return d, nil
	}

	e.metricInc(MetricRateLimitDenied)
	if !d.FirstDenial {
		return d, ErrRateLimited
	}
	e.record(ctx, telemetry.KindRateLimitExceeded, "", map[string]any{
		"identifier": identifier,
		"tier":       string(d.Tier),
		"path":       rate.NormalizePath(path),
		"method":     method,
		"limit":      d.Limit,
	})
	return d, ErrRateLimited
}

/*
====================================
CSRF
====================================
*/

// IssueCSRF creates a CSRF token for userID.
func (e *Engine) IssueCSRF(ctx context.Context, userID string) (string, time.Time, error) {
	if e == nil || e.csrf == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	tok, err := e.csrf.Generate(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok.Value, tok.ExpiresAt, nil
}

// ValidateCSRF checks the double-submitted token on r. GET, HEAD and OPTIONS
// pass. A non-empty userID must own the token.
func (e *Engine) ValidateCSRF(ctx context.Context, r *http.Request, userID string) error {
	if e == nil || e.csrf == nil {
		return ErrEngineNotReady
	}
	err := e.csrf.Validate(ctx, r, userID)
	if err != nil {
		e.metricInc(MetricCSRFFailure)
	}
	return err
}

/*
====================================
SECURITY EVENTS
====================================
*/

// RecordEvent writes a security event on behalf of the host application.
// severity may raise the fixed severity of kind but never lower it.
func (e *Engine) RecordEvent(ctx context.Context, kind EventKind, severity EventSeverity, subjectID string, detail map[string]any) error {
	if e == nil || e.telemetry == nil {
		return ErrEngineNotReady
	}
	return e.telemetry.Record(ctx, telemetry.Entry{
		Kind:      kind,
		Severity:  severity,
		SubjectID: subjectID,
		Detail:    detail,
	})
}

func (e *Engine) SecurityEvents(ctx context.Context, f EventFilter) ([]SecurityEvent, error) {
	if e == nil || e.telemetry == nil {
		return nil, ErrEngineNotReady
	}
	return e.telemetry.ListEvents(ctx, f)
}

// ResolveSecurityEvent marks an event handled. Resolving twice returns
// store.ErrNotFound.
func (e *Engine) ResolveSecurityEvent(ctx context.Context, id string) error {
	if e == nil || e.telemetry == nil {
		return ErrEngineNotReady
	}
	return e.telemetry.ResolveEvent(ctx, id)
}

// IsIPBlocked reports whether ip is blocked after repeated login failures.
// A store failure is logged and treated as not blocked.
func (e *Engine) IsIPBlocked(ctx context.Context, ip string) (bool, time.Time) {
	if e == nil || e.telemetry == nil || ip == "" {
		return false, time.Time{}
	}
	blocked, until, err := e.telemetry.IsIPBlocked(ctx, ip)
	if err != nil {
		e.logger.Warn("ip block check failed", zap.Error(err))
		return false, time.Time{}
	}
	return blocked, until
}

// IsRetryable reports whether err is a transient store failure worth
// retrying.
func IsRetryable(err error) bool {
	return store.IsRetryable(err)
}
