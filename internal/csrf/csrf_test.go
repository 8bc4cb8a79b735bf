package csrf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/telemetry"
	"github.com/MrEthical07/sessioncore/store"
	"github.com/MrEthical07/sessioncore/store/storetest"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newGuard(t *testing.T) (*Guard, *telemetry.Pipeline, *clock.Fake) {
	t.Helper()
	s := storetest.New(t)
	clk := clock.NewFake(testStart)
	p := telemetry.New(s, nil, clk, nil, telemetry.Config{})
	return New(s, p, clk, DefaultConfig()), p, clk
}

func request(method, header, cookie string) *http.Request {
	r := httptest.NewRequest(method, "/api/farms", strings.NewReader("{}"))
	if header != "" {
		r.Header.Set("X-CSRF-Token", header)
	}
	if cookie != "" {
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: cookie})
	}
	return r
}

func failures(t *testing.T, p *telemetry.Pipeline) []telemetry.Event {
	t.Helper()
	evs, err := p.ListEvents(context.Background(), telemetry.Filter{Type: string(telemetry.KindCSRFValidationFailed)})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	return evs
}

func TestGenerateProducesURLSafeToken(t *testing.T) {
	g, _, _ := newGuard(t)
	tok, err := g.Generate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(tok.Value) != 43 || !wellFormed(tok.Value) {
		t.Fatalf("unexpected token %q", tok.Value)
	}
	if !tok.ExpiresAt.Equal(testStart.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", tok.ExpiresAt)
	}
	other, _ := g.Generate(context.Background(), "u1")
	if other.Value == tok.Value {
		t.Fatal("tokens must be unique")
	}
}

func TestCookieAttributes(t *testing.T) {
	g, _, _ := newGuard(t)
	c := g.Cookie(Token{Value: "v", ExpiresAt: testStart})
	if c.HttpOnly {
		t.Fatal("csrf cookie must be readable by scripts")
	}
	if !c.Secure || c.SameSite != http.SameSiteStrictMode || c.Path != "/" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if cl := g.ClearCookie(); cl.MaxAge >= 0 || cl.Value != "" {
		t.Fatalf("clear cookie must expire immediately: %+v", cl)
	}
}

func TestValidateAcceptsMatchingStoredToken(t *testing.T) {
	g, p, _ := newGuard(t)
	ctx := context.Background()
	tok, _ := g.Generate(ctx, "u1")
	if err := g.Validate(ctx, request(http.MethodPost, tok.Value, tok.Value), "u1"); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if err := g.Validate(ctx, request(http.MethodDelete, tok.Value, tok.Value), ""); err != nil {
		t.Fatalf("valid token rejected without owner check: %v", err)
	}
	if n := len(failures(t, p)); n != 0 {
		t.Fatalf("no failure events expected, got %d", n)
	}
}

func TestValidateRejections(t *testing.T) {
	g, p, _ := newGuard(t)
	ctx := context.Background()
	tok, _ := g.Generate(ctx, "u1")
	unknown := strings.Repeat("A", 43)
	tampered := tok.Value[:42] + flip(tok.Value[42])

	cases := []struct {
		name           string
		header, cookie string
		user           string
		want           error
	}{
		{"missing header", "", tok.Value, "u1", ErrMissing},
		{"missing cookie", tok.Value, "", "u1", ErrMissing},
		{"short", "abc", "abc", "u1", ErrMalformed},
		{"bad charset", tok.Value[:40] + "+/=", tok.Value[:40] + "+/=", "u1", ErrMalformed},
		{"too long", strings.Repeat("a", 300), strings.Repeat("a", 300), "u1", ErrMalformed},
		{"tampered header", tampered, tok.Value, "u1", ErrMismatch},
		{"tampered cookie", tok.Value, tampered, "u1", ErrMismatch},
		{"not stored", unknown, unknown, "u1", ErrNotFound},
		{"other owner", tok.Value, tok.Value, "u2", ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Validate(ctx, request(http.MethodPost, tc.header, tc.cookie), tc.user)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	evs := failures(t, p)
	if len(evs) != len(cases) {
		t.Fatalf("expected %d failure events, got %d", len(cases), len(evs))
	}
	for _, ev := range evs {
		if ev.Severity != telemetry.SeverityHigh {
			t.Fatalf("csrf failures must be high severity, got %s", ev.Severity)
		}
		if ev.Detail["reason"] == "" {
			t.Fatalf("missing reason in %+v", ev.Detail)
		}
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	g, _, clk := newGuard(t)
	ctx := context.Background()
	tok, _ := g.Generate(ctx, "u1")
	clk.Advance(31 * time.Minute)
	if err := g.Validate(ctx, request(http.MethodPost, tok.Value, tok.Value), "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestSafeMethodsAreExempt(t *testing.T) {
	g, p, _ := newGuard(t)
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		if err := g.Validate(context.Background(), request(m, "", ""), "u1"); err != nil {
			t.Fatalf("%s should be exempt: %v", m, err)
		}
	}
	if len(failures(t, p)) != 0 {
		t.Fatal("exempt methods must not record failures")
	}
}

func TestRevoke(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()
	a, _ := g.Generate(ctx, "u1")
	b, _ := g.Generate(ctx, "u1")
	c, _ := g.Generate(ctx, "u2")

	if err := g.Revoke(ctx, a.Value); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := g.Validate(ctx, request(http.MethodPost, a.Value, a.Value), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked token accepted: %v", err)
	}

	n, err := g.RevokeAllForUser(ctx, "u1")
	if err != nil || n != 1 {
		t.Fatalf("RevokeAllForUser = %d, %v", n, err)
	}
	if err := g.Validate(ctx, request(http.MethodPost, b.Value, b.Value), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("bulk-revoked token accepted: %v", err)
	}
	if err := g.Validate(ctx, request(http.MethodPost, c.Value, c.Value), "u2"); err != nil {
		t.Fatalf("other user's token must survive: %v", err)
	}
}

type timeoutStore struct{ Store }

func (timeoutStore) GetCSRFToken(context.Context, string, time.Time) (store.CSRFToken, error) {
	return store.CSRFToken{}, store.ErrTimeout
}

func TestStoreFailureFailsClosed(t *testing.T) {
	s := storetest.New(t)
	g := New(timeoutStore{Store: s}, nil, clock.NewFake(testStart), DefaultConfig())
	tok := strings.Repeat("b", 43)
	err := g.Validate(context.Background(), request(http.MethodPost, tok, tok), "")
	if !errors.Is(err, store.ErrTimeout) {
		t.Fatalf("expected store timeout to surface, got %v", err)
	}
}

func flip(b byte) string {
	if b == 'A' {
		return "B"
	}
	return "A"
}
