package sessioncore

import (
	"context"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/store"
)

// Sweep purges expired revocations and CSRF tokens, login attempts past
// retention and resolved events past retention. It is idempotent and safe to
// run while serving traffic. Partial failures are returned joined, with the
// counts of the steps that succeeded.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e == nil || e.store == nil {
		return SweepResult{}, ErrEngineNotReady
	}
	res, err := e.store.Sweep(ctx, store.SweepPolicy{
		Now:              e.clock.Now(),
		AttemptRetention: e.config.Retention.LoginAttempts,
		EventRetention:   e.config.Retention.ResolvedEvents,
		RevocationGrace:  e.config.JWT.Leeway,
	})
	e.metricInc(MetricSweepRun)

	fields := []zap.Field{
		zap.Int64("revocations", res.Revocations),
		zap.Int64("csrf_tokens", res.CSRFTokens),
		zap.Int64("login_attempts", res.LoginAttempts),
		zap.Int64("security_events", res.SecurityEvents),
	}
	if err != nil {
		e.logger.Error("maintenance sweep incomplete", append(fields, zap.Error(err))...)
	} else {
		e.logger.Info("maintenance sweep complete", fields...)
	}

	detail := map[string]any{
		"revocations":    res.Revocations,
		"csrfTokens":     res.CSRFTokens,
		"loginAttempts":  res.LoginAttempts,
		"securityEvents": res.SecurityEvents,
	}
	if err != nil {
		detail["error"] = err.Error()
	}
	e.record(ctx, telemetry.KindMaintenanceSweep, "", detail)
	return res, err
}
