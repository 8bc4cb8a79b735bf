package store

import (
	"context"
	"errors"
	"time"
)

// SweepPolicy fixes the cutoffs for one maintenance pass.
type SweepPolicy struct {
	Now              time.Time
	AttemptRetention time.Duration
	EventRetention   time.Duration
	// RevocationGrace keeps revocations past their token expiry for as long
	// as the token parser still accepts an expired token.
	RevocationGrace time.Duration
}

// SweepResult counts rows removed per table.
type SweepResult struct {
	Revocations    int64 `json:"revocations"`
	CSRFTokens     int64 `json:"csrfTokens"`
	LoginAttempts  int64 `json:"loginAttempts"`
	SecurityEvents int64 `json:"securityEvents"`
}

// Sweep purges expired revocations, expired CSRF tokens, stale login attempts
// and old resolved events. Each step is a single idempotent DELETE, so a sweep
// may overlap live traffic or another sweep. A failing step does not stop the
// others; all failures are joined.
func (s *Store) Sweep(ctx context.Context, p SweepPolicy) (SweepResult, error) {
	var (
		res  SweepResult
		errs []error
		err  error
	)

	if res.Revocations, err = s.PurgeExpiredRevocations(ctx, p.Now.Add(-p.RevocationGrace)); err != nil {
		errs = append(errs, err)
	}
	if res.CSRFTokens, err = s.PurgeExpiredCSRFTokens(ctx, p.Now); err != nil {
		errs = append(errs, err)
	}
	if p.AttemptRetention > 0 {
		if res.LoginAttempts, err = s.PurgeLoginAttempts(ctx, p.Now.Add(-p.AttemptRetention)); err != nil {
			errs = append(errs, err)
		}
	}
	if p.EventRetention > 0 {
		if res.SecurityEvents, err = s.PurgeResolvedEvents(ctx, p.Now.Add(-p.EventRetention)); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}
