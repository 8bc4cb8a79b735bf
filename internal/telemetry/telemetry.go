package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/sessioncore/internal/audit"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/logging"
	"github.com/MrEthical07/sessioncore/internal/reqctx"
	"github.com/MrEthical07/sessioncore/store"
)

// Store is the persistence the pipeline and its detectors need.
type Store interface {
	InsertSecurityEvent(ctx context.Context, e store.SecurityEvent) error
	CountEvents(ctx context.Context, eventType, ip string, since time.Time) (int, error)
	ListSecurityEvents(ctx context.Context, f store.EventFilter) ([]store.SecurityEvent, error)
	ResolveSecurityEvent(ctx context.Context, id string, at time.Time) error
	CountFailedAttempts(ctx context.Context, ip string, since time.Time) (int, error)
	RecentSuccessIPs(ctx context.Context, emailHash string, since time.Time, limit int) ([]string, error)
	BlockIP(ctx context.Context, ip string, since, until time.Time) (int64, error)
	BlockedUntil(ctx context.Context, ip string, now time.Time) (time.Time, bool, error)
}

// Emitter receives events that qualify as alerts.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event)
}

// Entry is one event to record. Severity may only raise the kind's fixed
// severity. A zero Request is filled from the context.
type Entry struct {
	Kind      Kind
	Severity  Severity
	SubjectID string
	Request   reqctx.Info
	Detail    map[string]any
}

// Event is a recorded security event with its detail decoded.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Severity   Severity       `json:"severity"`
	SubjectID  string         `json:"subjectId,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	DetectedAt time.Time      `json:"detectedAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
}

// Filter narrows ListEvents.
type Filter = store.EventFilter

// Config tunes detectors and alerting. Zero values select the defaults.
type Config struct {
	RapidWindow      time.Duration  `mapstructure:"rapid_window"`
	RapidThreshold   int            `mapstructure:"rapid_threshold"`
	MultiIPWindow    time.Duration  `mapstructure:"multi_ip_window"`
	MultiIPLookback  int            `mapstructure:"multi_ip_lookback"`
	MultiIPThreshold int            `mapstructure:"multi_ip_threshold"`
	UnusualHourStart int            `mapstructure:"unusual_hour_start"`
	UnusualHourEnd   int            `mapstructure:"unusual_hour_end"`
	Location         *time.Location `mapstructure:"-"`
	BruteWindow      time.Duration  `mapstructure:"brute_window"`
	BruteThreshold   int            `mapstructure:"brute_threshold"`
	BlockDuration    time.Duration  `mapstructure:"block_duration"`
	AlertMinSeverity Severity       `mapstructure:"alert_min_severity"`
	// AlertsPerMinute caps alerts per kind; a burst of the same kind beyond it
	// is recorded but not forwarded.
	AlertsPerMinute int `mapstructure:"alerts_per_minute"`
	// OnRecord runs after each successful insert, typically a metrics counter.
	OnRecord func(kind Kind, severity Severity) `mapstructure:"-"`
}

// DefaultConfig returns the detector thresholds used in production.
func DefaultConfig() Config {
	return Config{
		RapidWindow:      5 * time.Minute,
		RapidThreshold:   10,
		MultiIPWindow:    24 * time.Hour,
		MultiIPLookback:  10,
		MultiIPThreshold: 3,
		UnusualHourStart: 2,
		UnusualHourEnd:   5,
		Location:         time.Local,
		BruteWindow:      15 * time.Minute,
		BruteThreshold:   5,
		BlockDuration:    30 * time.Minute,
		AlertMinSeverity: SeverityHigh,
		AlertsPerMinute:  30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RapidWindow <= 0 {
		c.RapidWindow = d.RapidWindow
	}
	if c.RapidThreshold <= 0 {
		c.RapidThreshold = d.RapidThreshold
	}
	if c.MultiIPWindow <= 0 {
		c.MultiIPWindow = d.MultiIPWindow
	}
	if c.MultiIPLookback <= 0 {
		c.MultiIPLookback = d.MultiIPLookback
	}
	if c.MultiIPThreshold <= 0 {
		c.MultiIPThreshold = d.MultiIPThreshold
	}
	if c.UnusualHourStart == 0 && c.UnusualHourEnd == 0 {
		c.UnusualHourStart, c.UnusualHourEnd = d.UnusualHourStart, d.UnusualHourEnd
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	if c.BruteWindow <= 0 {
		c.BruteWindow = d.BruteWindow
	}
	if c.BruteThreshold <= 0 {
		c.BruteThreshold = d.BruteThreshold
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = d.BlockDuration
	}
	if !c.AlertMinSeverity.Valid() {
		c.AlertMinSeverity = d.AlertMinSeverity
	}
	if c.AlertsPerMinute <= 0 {
		c.AlertsPerMinute = d.AlertsPerMinute
	}
	return c
}

// Pipeline records security events, runs the login detectors and forwards
// alerts. Safe for concurrent use.
type Pipeline struct {
	store   Store
	alerts  Emitter
	clock   clock.Clock
	logger  *zap.Logger
	config  Config
	mu      sync.Mutex
	limiter map[Kind]*rate.Limiter
}

// New returns a Pipeline. alerts may be nil.
func New(s Store, alerts Emitter, clk clock.Clock, logger *zap.Logger, cfg Config) *Pipeline {
	return &Pipeline{
		store:   s,
		alerts:  alerts,
		clock:   clock.OrSystem(clk),
		logger:  logging.OrNop(logger),
		config:  cfg.withDefaults(),
		limiter: make(map[Kind]*rate.Limiter),
	}
}

// EffectiveSeverity returns the severity recorded for an entry of kind with the
// requested override.
func EffectiveSeverity(kind Kind, requested Severity) (Severity, bool) {
	fixed, known := SeverityOf(kind)
	if !known {
		fixed = SeverityLow
	}
	if requested.Valid() && requested.rank() > fixed.rank() {
		return requested, known
	}
	return fixed, known
}

// Record persists e. The write detaches from ctx cancellation so a client
// disconnect cannot drop it.
func (p *Pipeline) Record(ctx context.Context, e Entry) error {
	ctx = context.WithoutCancel(ctx)

	severity, known := EffectiveSeverity(e.Kind, e.Severity)
	if !known {
		p.logger.Warn("unregistered security event kind", zap.String("kind", string(e.Kind)))
	}
	info := e.Request
	if info == (reqctx.Info{}) {
		info = reqctx.FromContext(ctx)
	}

	var data string
	if len(e.Detail) > 0 {
		raw, err := json.Marshal(e.Detail)
		if err != nil {
			p.logger.Warn("security event detail not serializable",
				zap.String("kind", string(e.Kind)),
				zap.Error(err),
			)
		} else {
			data = string(raw)
		}
	}

	rec := store.SecurityEvent{
		ID:         uuid.NewString(),
		Type:       string(e.Kind),
		Severity:   string(severity),
		UserID:     e.SubjectID,
		IPAddress:  info.IP,
		UserAgent:  info.UserAgent,
		Data:       data,
		DetectedAt: p.clock.Now(),
	}
	if err := p.store.InsertSecurityEvent(ctx, rec); err != nil {
		p.logger.Error("security event write failed",
			zap.String("kind", rec.Type),
			zap.String("severity", rec.Severity),
			zap.Error(err),
		)
		return err
	}
	if p.config.OnRecord != nil {
		p.config.OnRecord(e.Kind, severity)
	}
	p.alert(ctx, rec, e.Detail, severity)
	return nil
}

func (p *Pipeline) alert(ctx context.Context, rec store.SecurityEvent, detail map[string]any, severity Severity) {
	if p.alerts == nil || !severity.AtLeast(p.config.AlertMinSeverity) {
		return
	}
	if !p.allowAlert(Kind(rec.Type)) {
		p.logger.Debug("alert throttled", zap.String("kind", rec.Type))
		return
	}
	p.alerts.Emit(ctx, audit.Event{
		ID:         rec.ID,
		Kind:       rec.Type,
		Severity:   rec.Severity,
		SubjectID:  rec.UserID,
		IP:         rec.IPAddress,
		UserAgent:  rec.UserAgent,
		Detail:     detail,
		DetectedAt: rec.DetectedAt,
	})
}

func (p *Pipeline) allowAlert(kind Kind) bool {
	p.mu.Lock()
	l, ok := p.limiter[kind]
	if !ok {
		per := rate.Every(time.Minute / time.Duration(p.config.AlertsPerMinute))
		l = rate.NewLimiter(per, p.config.AlertsPerMinute)
		p.limiter[kind] = l
	}
	p.mu.Unlock()
	return l.AllowN(p.clock.Now(), 1)
}

// ListEvents returns recorded events matching f, newest first.
func (p *Pipeline) ListEvents(ctx context.Context, f Filter) ([]Event, error) {
	rows, err := p.store.ListSecurityEvents(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev := Event{
			ID:         r.ID,
			Kind:       Kind(r.Type),
			Severity:   Severity(r.Severity),
			SubjectID:  r.UserID,
			IPAddress:  r.IPAddress,
			UserAgent:  r.UserAgent,
			DetectedAt: r.DetectedAt,
			ResolvedAt: r.ResolvedAt,
		}
		if r.Data != "" {
			if err := json.Unmarshal([]byte(r.Data), &ev.Detail); err != nil {
				ev.Detail = map[string]any{"raw": r.Data}
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// ResolveEvent marks an event resolved. Resolving twice returns
// store.ErrNotFound.
func (p *Pipeline) ResolveEvent(ctx context.Context, id string) error {
	return p.store.ResolveSecurityEvent(ctx, id, p.clock.Now())
}
