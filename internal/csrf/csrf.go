// Package csrf implements the double-submit cookie defense.
//
// A token is random, handed to the client both as a readable cookie and in
// the response body, and stored server side by hash. A state-changing
// request passes only when the header copy equals the cookie copy and the
// token is still on record.
package csrf

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/store"
)

var (
	ErrMissing   = errors.New("csrf token missing")
	ErrMalformed = errors.New("csrf token malformed")
	ErrMismatch  = errors.New("csrf token mismatch")
	ErrNotFound  = errors.New("csrf token not found or expired")
)

const (
	tokenBytes     = 32
	maxTokenLength = 256
)

var tokenFormat = regexp.MustCompile(`^[A-Za-z0-9_-]{32,}$`)

// Store persists token hashes.
type Store interface {
	InsertCSRFToken(ctx context.Context, tok store.CSRFToken) error
	GetCSRFToken(ctx context.Context, tokenHash string, now time.Time) (store.CSRFToken, error)
	DeleteCSRFToken(ctx context.Context, tokenHash string) (int64, error)
	DeleteCSRFTokensForUser(ctx context.Context, userID string) (int64, error)
}

// Recorder receives a security event for every rejection.
type Recorder interface {
	Record(ctx context.Context, e telemetry.Entry) error
}

type Config struct {
	TTL        time.Duration `mapstructure:"ttl"`
	CookieName string        `mapstructure:"cookie_name"`
	HeaderName string        `mapstructure:"header_name"`
	CookiePath string        `mapstructure:"cookie_path"`
	Domain     string        `mapstructure:"domain"`
	Secure     bool          `mapstructure:"secure"`
}

func DefaultConfig() Config {
	return Config{
		TTL:        30 * time.Minute,
		CookieName: "csrf_token",
		HeaderName: "X-CSRF-Token",
		CookiePath: "/",
		Secure:     true,
	}
}

// Token is a freshly generated value. Value is never stored.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Guard struct {
	store    Store
	recorder Recorder
	clock    clock.Clock
	config   Config
}

// New returns a Guard. Empty config fields take the defaults except Secure,
// which is used as given.
func New(s Store, recorder Recorder, clk clock.Clock, cfg Config) *Guard {
	d := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = d.TTL
	}
	if cfg.CookieName == "" {
		cfg.CookieName = d.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = d.HeaderName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = d.CookiePath
	}
	return &Guard{store: s, recorder: recorder, clock: clock.OrSystem(clk), config: cfg}
}

func (g *Guard) CookieName() string { return g.config.CookieName }
func (g *Guard) HeaderName() string { return g.config.HeaderName }

// Generate creates and stores a token for userID.
func (g *Guard) Generate(ctx context.Context, userID string) (Token, error) {
	value, err := internal.RandomToken(tokenBytes)
	if err != nil {
		return Token{}, err
	}
	now := g.clock.Now()
	tok := Token{Value: value, ExpiresAt: now.Add(g.config.TTL)}
	err = g.store.InsertCSRFToken(ctx, store.CSRFToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(value),
		CreatedAt: now,
		ExpiresAt: tok.ExpiresAt,
	})
	if err != nil {
		return Token{}, err
	}
	return tok, nil
}

// Cookie carries tok to the client. It is readable by scripts because the
// client must echo it in a header.
func (g *Guard) Cookie(tok Token) *http.Cookie {
	return &http.Cookie{
		Name:     g.config.CookieName,
		Value:    tok.Value,
		Path:     g.config.CookiePath,
		Domain:   g.config.Domain,
		Expires:  tok.ExpiresAt,
		MaxAge:   int(g.config.TTL / time.Second),
		Secure:   g.config.Secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	}
}

func (g *Guard) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     g.config.CookieName,
		Value:    "",
		Path:     g.config.CookiePath,
		Domain:   g.config.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   g.config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Exempt reports whether method skips validation.
func Exempt(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Validate checks r for a valid double-submitted token. Safe methods pass
// without a check. When userID is set the stored token must belong to it.
func (g *Guard) Validate(ctx context.Context, r *http.Request, userID string) error {
	if Exempt(r.Method) {
		return nil
	}
	header := r.Header.Get(g.config.HeaderName)
	var cookie string
	if c, err := r.Cookie(g.config.CookieName); err == nil {
		cookie = c.Value
	}

	err := g.check(ctx, header, cookie, userID)
	if err != nil {
		g.reject(ctx, r, userID, err)
	}
	return err
}

func (g *Guard) check(ctx context.Context, header, cookie, userID string) error {
	if header == "" || cookie == "" {
		return ErrMissing
	}
	if !wellFormed(header) || !wellFormed(cookie) {
		return ErrMalformed
	}
	if !internal.ConstantTimeEqual(header, cookie) {
		return ErrMismatch
	}
	rec, err := g.store.GetCSRFToken(ctx, internal.HashToken(header), g.clock.Now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if userID != "" && rec.UserID != userID {
		return fmt.Errorf("%w: owner differs", ErrNotFound)
	}
	return nil
}

func (g *Guard) reject(ctx context.Context, r *http.Request, userID string, err error) {
	if g.recorder == nil {
		return
	}
	_ = g.recorder.Record(ctx, telemetry.Entry{
		Kind:      telemetry.KindCSRFValidationFailed,
		SubjectID: userID,
		Detail: map[string]any{
			"reason": reason(err),
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return "missing"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	return "store_error"
}

func wellFormed(v string) bool {
	return len(v) <= maxTokenLength && tokenFormat.MatchString(v)
}

// Revoke deletes one token. Unknown tokens are not an error.
func (g *Guard) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := g.store.DeleteCSRFToken(ctx, internal.HashToken(token))
	return err
}

// RevokeAllForUser deletes every token of userID in one statement.
func (g *Guard) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return g.store.DeleteCSRFTokensForUser(ctx, userID)
}
