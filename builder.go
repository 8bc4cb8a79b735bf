package sessioncore

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore/internal/audit"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/csrf"
	"github.com/MrEthical07/sessioncore/internal/logging"
	"github.com/MrEthical07/sessioncore/internal/mfa"
	"github.com/MrEthical07/sessioncore/internal/rate"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/internal/tokens"
	"github.com/MrEthical07/sessioncore/jwt"
	"github.com/MrEthical07/sessioncore/password"
	"github.com/MrEthical07/sessioncore/store"
)

// Builder assembles an Engine. Configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config
	store  *store.Store
	redis  redis.UniversalClient
	clock  clock.Clock
	logger *zap.Logger
	mailer Mailer

	alertSinks  []audit.Sink
	rateBackend rate.Backend

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the relational store. Required.
func (b *Builder) WithStore(s *store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis sets the client used by the redis rate limit backend. Without it
// Build dials Config.Redis when that backend is selected.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRateLimitBackend overrides the backend selected by configuration.
func (b *Builder) WithRateLimitBackend(backend RateLimitBackend) *Builder {
	b.rateBackend = backend
	return b
}

func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAlertSink adds a destination for high-severity events next to the
// sinks named by configuration.
func (b *Builder) WithAlertSink(sink AlertSink) *Builder {
	if sink != nil {
		b.alertSinks = append(b.alertSinks, sink)
	}
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	clk := clock.OrSystem(b.clock)
	logger := logging.OrNop(b.logger)
	metrics := NewMetrics(cfg.Metrics)

	e := &Engine{
		config:  cfg,
		store:   b.store,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
		mailer:  b.mailer,
	}

	// -------- ALERTS --------
	var emitter telemetry.Emitter
	if cfg.Telemetry.Alerts.Dispatcher.Enabled {
		sinks := audit.MultiSink{audit.NewLogSink(logger)}
		if url := cfg.Telemetry.Alerts.WebhookURL; url != "" {
			sinks = append(sinks, audit.NewWebhookSink(url, cfg.Telemetry.Alerts.WebhookTimeout, logger))
		}
		if len(cfg.Telemetry.Alerts.KafkaBrokers) > 0 {
			ks := audit.NewKafkaSink(audit.NewKafkaWriter(cfg.Telemetry.Alerts.KafkaBrokers, cfg.Telemetry.Alerts.KafkaTopic), logger)
			sinks = append(sinks, ks)
			e.closers = append(e.closers, ks.Close)
		}
		sinks = append(sinks, b.alertSinks...)
		e.alerts = audit.NewDispatcher(cfg.Telemetry.Alerts.Dispatcher, sinks, logger)
		emitter = e.alerts
	}

	// -------- TELEMETRY --------
	tcfg := cfg.telemetryConfig()
	tcfg.OnRecord = func(kind telemetry.Kind, severity telemetry.Severity) {
		metrics.SecurityEvent(string(kind), string(severity))
	}
	e.telemetry = telemetry.New(b.store, emitter, clk, logger, tcfg)

	// -------- TOKENS --------
	key := cfg.JWT.PrivateKey
	if strings.EqualFold(cfg.JWT.SigningMethod, "hs256") && cfg.JWT.Secret != "" {
		key = []byte(cfg.JWT.Secret)
	}
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		PrivateKey:    key,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           clk.Now,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	e.tokens = tokens.New(jm, b.store, b.store, e.telemetry, clk, logger, tokens.Config{
		RotateRefresh:        cfg.Refresh.Rotate,
		UnparseableRetention: cfg.Refresh.UnparseableRetention,
		Leeway:               cfg.JWT.Leeway,
	})

	// -------- RATE LIMIT --------
	if cfg.RateLimit.Enabled {
		backend := b.rateBackend
		if backend == nil {
			backend, err = b.buildRateBackend(cfg)
			if err != nil {
				e.Close()
				return nil, err
			}
		}
		e.limiter = rate.New(backend, rate.Config{
			Rules:     cfg.RateLimit.Rules,
			FailOpen:  cfg.RateLimit.FailOpen,
			KeyPrefix: cfg.RateLimit.KeyPrefix,
		}, clk, logger)
	}

	// -------- CSRF / MFA / PASSWORD --------
	e.csrf = csrf.New(b.store, e.telemetry, clk, cfg.CSRF)
	e.mfa = mfa.New(b.store, e.telemetry, clk, logger, cfg.MFA)
	e.hasher, err = password.New(cfg.Password)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.flows = e.buildFlows()
	b.built = true
	return e, nil
}

func (b *Builder) buildRateBackend(cfg Config) (rate.Backend, error) {
	if cfg.RateLimit.Backend == "redis" {
		client := b.redis
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}
		return rate.NewRedisBackend(client), nil
	}
	return rate.NewMemoryBackend(cfg.RateLimit.MaxKeys)
}
