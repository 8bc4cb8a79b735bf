package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/reqctx"
	"github.com/MrEthical07/sessioncore/store"
)

// AnalyzeLoginAttempt runs every login detector against a freshly written
// attempt. Detector failures are logged and never returned.
func (p *Pipeline) AnalyzeLoginAttempt(ctx context.Context, a store.LoginAttempt) {
	ctx = context.WithoutCancel(ctx)
	req := reqctx.Info{IP: a.IPAddress, UserAgent: a.UserAgent}

	if a.Success {
		p.detectMultipleIPs(ctx, a, req)
		p.detectUnusualHour(ctx, a, req)
		return
	}
	p.detectRapidAttempts(ctx, a, req)
	p.detectBruteForce(ctx, a, req)
}

// detectRapidAttempts fires once per window when more than RapidThreshold
// failures came from one address. The attempt under analysis is already
// stored, so it is part of the count.
func (p *Pipeline) detectRapidAttempts(ctx context.Context, a store.LoginAttempt, req reqctx.Info) {
	since := a.AttemptedAt.Add(-p.config.RapidWindow)
	failures, err := p.store.CountFailedAttempts(ctx, a.IPAddress, since)
	if err != nil {
		p.detectorFailed("rapid_attempts", err)
		return
	}
	prior := failures - 1
	if prior < p.config.RapidThreshold {
		return
	}
	existing, err := p.store.CountEvents(ctx, string(KindRapidLoginAttempts), a.IPAddress, since)
	if err != nil {
		p.detectorFailed("rapid_attempts", err)
		return
	}
	if existing > 0 {
		return
	}
	_ = p.Record(ctx, Entry{
		Kind:    KindRapidLoginAttempts,
		Request: req,
		Detail: map[string]any{
			"attemptCount":  failures,
			"windowMinutes": int(p.config.RapidWindow / time.Minute),
		},
	})
}

func (p *Pipeline) detectMultipleIPs(ctx context.Context, a store.LoginAttempt, req reqctx.Info) {
	ips, err := p.store.RecentSuccessIPs(ctx, a.EmailHash, a.AttemptedAt.Add(-p.config.MultiIPWindow), p.config.MultiIPLookback)
	if err != nil {
		p.detectorFailed("multiple_ips", err)
		return
	}
	distinct := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		distinct[ip] = struct{}{}
	}
	if len(distinct) < p.config.MultiIPThreshold {
		return
	}
	_ = p.Record(ctx, Entry{
		Kind:    KindMultipleGeographicLogins,
		Request: req,
		Detail: map[string]any{
			"emailHash":   a.EmailHash,
			"distinctIPs": len(distinct),
		},
	})
}

func (p *Pipeline) detectUnusualHour(ctx context.Context, a store.LoginAttempt, req reqctx.Info) {
	hour := a.AttemptedAt.In(p.config.Location).Hour()
	if hour < p.config.UnusualHourStart || hour >= p.config.UnusualHourEnd {
		return
	}
	_ = p.Record(ctx, Entry{
		Kind:    KindUnusualTimeLogin,
		Request: req,
		Detail: map[string]any{
			"emailHash": a.EmailHash,
			"hour":      hour,
		},
	})
}

// detectBruteForce blocks an address once it reaches BruteThreshold failures
// inside BruteWindow. An address already blocked is left alone.
func (p *Pipeline) detectBruteForce(ctx context.Context, a store.LoginAttempt, req reqctx.Info) {
	since := a.AttemptedAt.Add(-p.config.BruteWindow)
	failures, err := p.store.CountFailedAttempts(ctx, a.IPAddress, since)
	if err != nil {
		p.detectorFailed("brute_force", err)
		return
	}
	if failures < p.config.BruteThreshold {
		return
	}
	if _, blocked, err := p.store.BlockedUntil(ctx, a.IPAddress, a.AttemptedAt); err != nil {
		p.detectorFailed("brute_force", err)
		return
	} else if blocked {
		return
	}
	until := a.AttemptedAt.Add(p.config.BlockDuration)
	if _, err := p.store.BlockIP(ctx, a.IPAddress, since, until); err != nil {
		p.detectorFailed("brute_force", err)
		return
	}
	p.logger.Warn("address blocked after repeated login failures",
		zap.String("ip", a.IPAddress),
		zap.Int("failures", failures),
		zap.Time("blocked_until", until),
	)
	_ = p.Record(ctx, Entry{
		Kind:    KindIPBlocked,
		Request: req,
		Detail: map[string]any{
			"failures":     failures,
			"blockedUntil": until.UTC().Format(time.RFC3339),
		},
	})
}

// IsIPBlocked reports whether ip is inside an active block window.
func (p *Pipeline) IsIPBlocked(ctx context.Context, ip string) (bool, time.Time, error) {
	if ip == "" {
		return false, time.Time{}, nil
	}
	until, blocked, err := p.store.BlockedUntil(ctx, ip, p.clock.Now())
	if err != nil {
		return false, time.Time{}, err
	}
	return blocked, until, nil
}

func (p *Pipeline) detectorFailed(detector string, err error) {
	p.logger.Warn("security detector failed",
		zap.String("detector", detector),
		zap.Error(err),
	)
}
