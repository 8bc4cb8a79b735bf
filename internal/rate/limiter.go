package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/logging"
)

// Rule is the ceiling for one tier.
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Config holds per-tier rules and the failure policy.
type Config struct {
	Rules map[Tier]Rule
	// FailOpen admits requests when the backend errors. Availability wins
	// over strictness by default; turn it off to answer with
	// ErrBackendUnavailable instead.
	FailOpen  bool
	KeyPrefix string
}

// DefaultRules returns the stock per-minute ceilings.
func DefaultRules() map[Tier]Rule {
	return map[Tier]Rule{
		TierAuth:    {Limit: 10, Window: time.Minute},
		TierCreate:  {Limit: 50, Window: time.Minute},
		TierUpdate:  {Limit: 100, Window: time.Minute},
		TierDelete:  {Limit: 20, Window: time.Minute},
		TierSearch:  {Limit: 30, Window: time.Minute},
		TierDefault: {Limit: 100, Window: time.Minute},
	}
}

// Hit is what a backend reports for one request.
type Hit struct {
	Allowed bool
	// Count is the number of admitted requests in the window, including
	// this one when it was admitted.
	Count int
	// Oldest is the timestamp of the oldest admitted request still in the window.
	Oldest time.Time
}

// Backend records requests in a sliding window. Implementations prune entries
// older than now-window, count what remains, and record now only when the
// count is below limit.
type Backend interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Hit, error)
}

// Decision is the outcome of Check.
type Decision struct {
	Allowed     bool
	Limit       int
	Remaining   int
	ResetAt     time.Time
	RetryAfter  time.Duration
	Tier        Tier
	FailedOpen  bool
	// FirstDenial is set on the first rejection for a key until ResetAt.
	// Later rejections inside that span leave it false.
	FirstDenial bool
}

// Limiter applies tiered sliding-window limits over a Backend.
type Limiter struct {
	backend Backend
	config  Config
	clock   clock.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	reported *lru.Cache[string, time.Time]
}

// New returns a Limiter. Missing tiers fall back to DefaultRules.
func New(backend Backend, cfg Config, clk clock.Clock, logger *zap.Logger) *Limiter {
	rules := DefaultRules()
	for tier, r := range cfg.Rules {
		if r.Limit > 0 && r.Window > 0 {
			rules[tier] = r
		}
	}
	cfg.Rules = rules
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:"
	}
	// Only fails for a non-positive size.
	reported, _ := lru.New[string, time.Time](defaultMemoryKeys)
	return &Limiter{
		backend:  backend,
		config:   cfg,
		clock:    clock.OrSystem(clk),
		logger:   logging.OrNop(logger),
		reported: reported,
	}
}

// Rule returns the effective rule for tier.
func (l *Limiter) Rule(tier Tier) Rule {
	if r, ok := l.config.Rules[tier]; ok {
		return r
	}
	return l.config.Rules[TierDefault]
}

// Check admits or rejects one request from identifier to path.
func (l *Limiter) Check(ctx context.Context, identifier, path, method string) (Decision, error) {
	tier := Classify(path, method)
	rule := l.Rule(tier)
	now := l.clock.Now()
	key := l.key(identifier, NormalizePath(path), method)

	hit, err := l.backend.Hit(ctx, key, now, rule.Window, rule.Limit)
	if err != nil {
		if l.config.FailOpen {
			l.logger.Warn("rate limit backend failed, admitting request",
				zap.String("tier", string(tier)),
				zap.Error(err),
			)
			return Decision{
				Allowed:    true,
				Limit:      rule.Limit,
				Remaining:  rule.Limit,
				ResetAt:    now.Add(rule.Window),
				Tier:       tier,
				FailedOpen: true,
			}, nil
		}
		return Decision{Limit: rule.Limit, Tier: tier, ResetAt: now.Add(rule.Window)},
			fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	oldest := hit.Oldest
	if oldest.IsZero() {
		oldest = now
	}
	d := Decision{
		Allowed:   hit.Allowed,
		Limit:     rule.Limit,
		Remaining: rule.Limit - hit.Count,
		ResetAt:   oldest.Add(rule.Window),
		Tier:      tier,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = d.ResetAt.Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
		d.FirstDenial = l.firstDenial(key, now, d.ResetAt)
	}
	return d, nil
}

// firstDenial reports whether key has not been denied since its last
// reported reset, and marks it denied until resetAt.
func (l *Limiter) firstDenial(key string, now, resetAt time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.reported.Get(key); ok && now.Before(until) {
		return false
	}
	l.reported.Add(key, resetAt)
	return true
}

func (l *Limiter) key(identifier, class, method string) string {
	var b strings.Builder
	b.Grow(len(l.config.KeyPrefix) + len(identifier) + len(class) + len(method) + 2)
	b.WriteString(l.config.KeyPrefix)
	b.WriteString(identifier)
	b.WriteByte(':')
	b.WriteString(class)
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(method))
	return b.String()
}
