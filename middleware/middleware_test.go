package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/store"
	"github.com/MrEthical07/sessioncore/store/storetest"
)

func newEngine(t *testing.T) (*sessioncore.Engine, *clock.Fake) {
	t.Helper()
	cfg := sessioncore.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Password.BcryptCost = 4
	cfg.Telemetry.Timezone = "UTC"
	cfg.Telemetry.Alerts.Dispatcher.Enabled = false
	clk := clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	e, err := sessioncore.New().WithConfig(cfg).WithStore(storetest.New(t)).WithClock(clk).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e, clk
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{sessioncore.ErrTokenExpired, http.StatusUnauthorized},
		{fmt.Errorf("%w: bad signature", sessioncore.ErrTokenInvalid), http.StatusUnauthorized},
		{sessioncore.ErrInvalidCredentials, http.StatusUnauthorized},
		{sessioncore.ErrMFARequired, http.StatusUnauthorized},
		{sessioncore.ErrCSRFMismatch, http.StatusForbidden},
		{sessioncore.ErrRateLimited, http.StatusTooManyRequests},
		{sessioncore.ErrIPBlocked, http.StatusTooManyRequests},
		{sessioncore.ErrPasswordPolicy, http.StatusBadRequest},
		{sessioncore.ErrMFAInvalidSecret, http.StatusBadRequest},
		{ErrBadRequest, http.StatusBadRequest},
		{sessioncore.ErrAccountExists, http.StatusConflict},
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: deadline", store.ErrTimeout), http.StatusServiceUnavailable},
		{sessioncore.ErrRateLimitUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got, _ := StatusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestWriteErrorHidesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, fmt.Errorf("%w: user 42 row locked", store.ErrUnavailable))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "service unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := clientIP(r, false); got != "192.0.2.1" {
		t.Fatalf("untrusted proxy header used: %q", got)
	}
	if got := clientIP(r, true); got != "203.0.113.7" {
		t.Fatalf("expected forwarded address, got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "garbage")
	r.Header.Set("X-Real-IP", "198.51.100.4")
	if got := clientIP(r, true); got != "198.51.100.4" {
		t.Fatalf("expected real ip, got %q", got)
	}
}

func TestClientInfoPopulatesContext(t *testing.T) {
	var got string
	h := ClientInfo(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = sessioncore.ClientIP(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:1234"
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got != "192.0.2.9" {
		t.Fatalf("expected client ip in context, got %q", got)
	}
}

func TestRateLimitHeadersAnd429(t *testing.T) {
	e, clk := newEngine(t)
	h := ClientInfo(false)(RateLimit(e)(okHandler))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "192.0.2.50:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	for i := 0; i < 10; i++ {
		rec := do()
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Fatalf("missing limit header: %v", rec.Header())
		}
	}
	if rec := do(); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 11th request denied, got %d", rec.Code)
	}

	clk.Advance(2 * time.Minute)
	rec := do()
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected window to reset, got %d", rec.Code)
	}
}

func TestRateLimitDeniedResponse(t *testing.T) {
	e, _ := newEngine(t)
	h := ClientInfo(false)(RateLimit(e)(okHandler))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.RemoteAddr = "192.0.2.51:1000"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, r)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	hdr := rec.Header()
	if hdr.Get("Retry-After") == "" || hdr.Get("Cache-Control") != "no-store" {
		t.Fatalf("missing retry headers: %v", hdr)
	}
	if hdr.Get("X-RateLimit-Remaining") != "0" || hdr.Get("X-RateLimit-Reset") == "" {
		t.Fatalf("missing rate headers: %v", hdr)
	}
}

func TestRequireAuthAndCSRF(t *testing.T) {
	e, _ := newEngine(t)
	ctx := sessioncore.WithClientIP(context.Background(), "192.0.2.60")
	res, err := e.Signup(ctx, "carol@example.com", "correct-horse-42")
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	var seen *sessioncore.Principal
	h := RequireAuth(e)(RequireCSRF(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	r := httptest.NewRequest(http.MethodPost, "/things", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/things", nil)
	r.Header.Set("Authorization", "Bearer "+res.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf, got %d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/things", nil)
	r.Header.Set("Authorization", "Bearer "+res.AccessToken)
	r.Header.Set(e.CSRFHeaderName(), res.CSRFToken)
	r.AddCookie(e.CSRFCookie(res.CSRFToken, res.CSRFExpiresAt))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen == nil || seen.UserID != res.User.ID {
		t.Fatalf("principal not propagated: %+v", seen)
	}

	r = httptest.NewRequest(http.MethodGet, "/things", nil)
	r.Header.Set("Authorization", "bearer "+res.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("GET should skip csrf, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	for in, want := range map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Bearer ":     "",
		"Basic abc":   "",
		"":            "",
		"Bearer  abc": "abc",
	} {
		if got, _ := bearerToken(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}
