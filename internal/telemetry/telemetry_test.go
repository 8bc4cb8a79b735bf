package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/sessioncore/internal"
	"github.com/MrEthical07/sessioncore/internal/audit"
	"github.com/MrEthical07/sessioncore/internal/clock"
	"github.com/MrEthical07/sessioncore/internal/reqctx"
	"github.com/MrEthical07/sessioncore/store"
	"github.com/MrEthical07/sessioncore/store/storetest"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	p     *Pipeline
	store *store.Store
	clock *clock.Fake
}

func newFixture(t *testing.T, alerts Emitter, cfg Config) fixture {
	t.Helper()
	s := storetest.New(t)
	clk := clock.NewFake(testStart)
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return fixture{p: New(s, alerts, clk, nil, cfg), store: s, clock: clk}
}

// attempt stores a login attempt at the current fake time and analyzes it.
func (f fixture) attempt(t *testing.T, email, ip string, success bool) {
	t.Helper()
	a := store.LoginAttempt{
		ID:          uuid.NewString(),
		EmailHash:   internal.HashEmail(email),
		IPAddress:   ip,
		UserAgent:   "test-agent",
		Success:     success,
		AttemptedAt: f.clock.Now(),
	}
	if !success {
		a.FailureReason = "invalid_credentials"
	}
	if err := f.store.InsertLoginAttempt(context.Background(), a); err != nil {
		t.Fatalf("InsertLoginAttempt failed: %v", err)
	}
	f.p.AnalyzeLoginAttempt(context.Background(), a)
}

func (f fixture) events(t *testing.T, kind Kind) []Event {
	t.Helper()
	evs, err := f.p.ListEvents(context.Background(), Filter{Type: string(kind)})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	return evs
}

func TestRapidAttemptsFiresOnceAtEleventhFailure(t *testing.T) {
	f := newFixture(t, nil, Config{})
	for i := 0; i < 11; i++ {
		f.attempt(t, "victim@example.com", "203.0.113.5", false)
		if i < 10 && len(f.events(t, KindRapidLoginAttempts)) != 0 {
			t.Fatalf("rapid event fired early at failure %d", i+1)
		}
		f.clock.Advance(10 * time.Second)
	}

	evs := f.events(t, KindRapidLoginAttempts)
	if len(evs) != 1 {
		t.Fatalf("expected exactly one rapid event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Severity != SeverityHigh {
		t.Fatalf("expected high severity, got %s", ev.Severity)
	}
	if ev.IPAddress != "203.0.113.5" {
		t.Fatalf("unexpected ip %q", ev.IPAddress)
	}
	if got, ok := ev.Detail["attemptCount"].(float64); !ok || got != 11 {
		t.Fatalf("expected attemptCount 11, got %v", ev.Detail["attemptCount"])
	}

	f.attempt(t, "victim@example.com", "203.0.113.5", false)
	if n := len(f.events(t, KindRapidLoginAttempts)); n != 1 {
		t.Fatalf("rapid event must be suppressed inside the window, got %d", n)
	}
}

func TestRapidAttemptsIgnoresOldFailures(t *testing.T) {
	f := newFixture(t, nil, Config{})
	for i := 0; i < 10; i++ {
		f.attempt(t, "a@example.com", "198.51.100.1", false)
	}
	f.clock.Advance(6 * time.Minute)
	f.attempt(t, "a@example.com", "198.51.100.1", false)
	if n := len(f.events(t, KindRapidLoginAttempts)); n != 0 {
		t.Fatalf("failures outside the window must not count, got %d events", n)
	}
}

func TestBruteForceBlocksAddress(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.attempt(t, "a@example.com", "192.0.2.9", false)
		f.clock.Advance(time.Minute)
	}
	if blocked, _, _ := f.p.IsIPBlocked(ctx, "192.0.2.9"); blocked {
		t.Fatal("four failures must not block")
	}

	f.attempt(t, "a@example.com", "192.0.2.9", false)
	blocked, until, err := f.p.IsIPBlocked(ctx, "192.0.2.9")
	if err != nil || !blocked {
		t.Fatalf("expected block after five failures: %v %v", blocked, err)
	}
	if want := f.clock.Now().Add(30 * time.Minute); !until.Equal(want) {
		t.Fatalf("blocked until %v, want %v", until, want)
	}
	if n := len(f.events(t, KindIPBlocked)); n != 1 {
		t.Fatalf("expected one ip_blocked event, got %d", n)
	}

	f.attempt(t, "a@example.com", "192.0.2.9", false)
	if n := len(f.events(t, KindIPBlocked)); n != 1 {
		t.Fatalf("already blocked address must not be re-blocked, got %d events", n)
	}

	if blocked, _, _ := f.p.IsIPBlocked(ctx, "192.0.2.10"); blocked {
		t.Fatal("block must be per address")
	}

	f.clock.Advance(31 * time.Minute)
	if blocked, _, _ := f.p.IsIPBlocked(ctx, "192.0.2.9"); blocked {
		t.Fatal("block must lapse after its window")
	}
}

func TestMultipleIPsDetector(t *testing.T) {
	f := newFixture(t, nil, Config{})
	for i, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		f.attempt(t, "traveler@example.com", ip, true)
		f.clock.Advance(time.Hour)
		if n := len(f.events(t, KindMultipleGeographicLogins)); n != 0 {
			t.Fatalf("two distinct addresses must not fire (login %d)", i+1)
		}
	}
	f.attempt(t, "traveler@example.com", "10.0.0.3", true)
	evs := f.events(t, KindMultipleGeographicLogins)
	if len(evs) != 1 || evs[0].Severity != SeverityMedium {
		t.Fatalf("expected one medium multi-ip event, got %+v", evs)
	}

	f.attempt(t, "someone-else@example.com", "10.0.0.4", true)
	if n := len(f.events(t, KindMultipleGeographicLogins)); n != 1 {
		t.Fatalf("other users must not trigger, got %d", n)
	}
}

func TestUnusualHourDetector(t *testing.T) {
	f := newFixture(t, nil, Config{})
	f.attempt(t, "a@example.com", "10.0.0.1", true)
	if n := len(f.events(t, KindUnusualTimeLogin)); n != 0 {
		t.Fatalf("noon login flagged: %d", n)
	}
	f.clock.Set(time.Date(2024, 3, 2, 3, 15, 0, 0, time.UTC))
	f.attempt(t, "a@example.com", "10.0.0.1", true)
	evs := f.events(t, KindUnusualTimeLogin)
	if len(evs) != 1 || evs[0].Severity != SeverityLow {
		t.Fatalf("expected one low unusual-hour event, got %+v", evs)
	}
	f.clock.Set(time.Date(2024, 3, 2, 5, 0, 0, 0, time.UTC))
	f.attempt(t, "a@example.com", "10.0.0.1", true)
	if n := len(f.events(t, KindUnusualTimeLogin)); n != 1 {
		t.Fatalf("05:00 is outside the window, got %d events", n)
	}
}

func TestUnusualHourUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	f := newFixture(t, nil, Config{Location: loc})
	f.clock.Set(time.Date(2024, 3, 1, 22, 30, 0, 0, time.UTC))
	f.attempt(t, "a@example.com", "10.0.0.1", true)
	if n := len(f.events(t, KindUnusualTimeLogin)); n != 1 {
		t.Fatalf("03:30 local must be flagged, got %d", n)
	}
}

func TestSeverityOnlyEscalates(t *testing.T) {
	cases := []struct {
		kind      Kind
		requested Severity
		want      Severity
		known     bool
	}{
		{KindLoginSuccess, "", SeverityLow, true},
		{KindLoginSuccess, SeverityCritical, SeverityCritical, true},
		{KindIPBlocked, SeverityLow, SeverityHigh, true},
		{KindCSRFValidationFailed, "bogus", SeverityHigh, true},
		{"privilege_escalation_breach", "", SeverityLow, false},
		{"unknown_kind", SeverityHigh, SeverityHigh, false},
	}
	for _, tc := range cases {
		got, known := EffectiveSeverity(tc.kind, tc.requested)
		if got != tc.want || known != tc.known {
			t.Errorf("EffectiveSeverity(%s, %q) = %s/%v, want %s/%v", tc.kind, tc.requested, got, known, tc.want, tc.known)
		}
	}
}

func TestRecordUnregisteredKindWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := storetest.New(t)
	p := New(s, nil, clock.NewFake(testStart), zap.New(core), Config{})
	if err := p.Record(context.Background(), Entry{Kind: "suspicious_multiple_breach"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if logs.FilterMessage("unregistered security event kind").Len() != 1 {
		t.Fatal("expected a warning for an unregistered kind")
	}
	evs, _ := p.ListEvents(context.Background(), Filter{Type: "suspicious_multiple_breach"})
	if len(evs) != 1 || evs[0].Severity != SeverityLow {
		t.Fatalf("unregistered kind must be stored as low, got %+v", evs)
	}
}

func TestRecordSurvivesCancellationAndUsesRequestContext(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := reqctx.WithClientIP(context.Background(), "203.0.113.77")
	ctx = reqctx.WithUserAgent(ctx, "curl/8")
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	if err := f.p.Record(ctx, Entry{Kind: KindLogout, SubjectID: "u1", Detail: map[string]any{"reason": "user"}}); err != nil {
		t.Fatalf("Record with cancelled ctx failed: %v", err)
	}
	evs := f.events(t, KindLogout)
	if len(evs) != 1 {
		t.Fatalf("expected event to persist, got %d", len(evs))
	}
	ev := evs[0]
	if ev.IPAddress != "203.0.113.77" || ev.UserAgent != "curl/8" || ev.SubjectID != "u1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Detail["reason"] != "user" {
		t.Fatalf("unexpected detail %v", ev.Detail)
	}
}

func TestAlertsForwardHighSeverityAndThrottle(t *testing.T) {
	sink := audit.NewChannelSink(16)
	var recorded []Kind
	f := newFixture(t, sink, Config{
		AlertsPerMinute: 2,
		OnRecord:        func(k Kind, _ Severity) { recorded = append(recorded, k) },
	})
	ctx := context.Background()

	_ = f.p.Record(ctx, Entry{Kind: KindLoginSuccess})
	if len(sink.Events()) != 0 {
		t.Fatal("low severity must not alert")
	}
	for i := 0; i < 3; i++ {
		_ = f.p.Record(ctx, Entry{Kind: KindCSRFValidationFailed})
	}
	if n := len(sink.Events()); n != 2 {
		t.Fatalf("expected throttle to pass 2 alerts, got %d", n)
	}
	_ = f.p.Record(ctx, Entry{Kind: KindIPBlocked})
	if n := len(sink.Events()); n != 3 {
		t.Fatalf("throttle is per kind, expected 3 alerts, got %d", n)
	}
	if len(recorded) != 5 {
		t.Fatalf("OnRecord should see every event, got %d", len(recorded))
	}

	first := <-sink.Events()
	if first.Kind != string(KindCSRFValidationFailed) || first.Severity != string(SeverityHigh) {
		t.Fatalf("unexpected alert %+v", first)
	}
}

func TestResolveEvent(t *testing.T) {
	f := newFixture(t, nil, Config{})
	ctx := context.Background()
	_ = f.p.Record(ctx, Entry{Kind: KindIPBlocked})
	evs := f.events(t, KindIPBlocked)
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	if err := f.p.ResolveEvent(ctx, evs[0].ID); err != nil {
		t.Fatalf("ResolveEvent failed: %v", err)
	}
	if err := f.p.ResolveEvent(ctx, evs[0].ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second resolve should be ErrNotFound, got %v", err)
	}
	open, _ := f.p.ListEvents(ctx, Filter{UnresolvedOnly: true})
	if len(open) != 0 {
		t.Fatalf("resolved event still listed as open: %+v", open)
	}
}

type brokenStore struct{ Store }

func (brokenStore) CountFailedAttempts(context.Context, string, time.Time) (int, error) {
	return 0, store.ErrTimeout
}

func (brokenStore) RecentSuccessIPs(context.Context, string, time.Time, int) ([]string, error) {
	return nil, store.ErrUnavailable
}

func (b brokenStore) InsertSecurityEvent(context.Context, store.SecurityEvent) error {
	return store.ErrUnavailable
}

func TestDetectorFailuresAreSwallowed(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := New(brokenStore{Store: storetest.New(t)}, nil, clock.NewFake(testStart), zap.New(core), Config{Location: time.UTC})
	a := store.LoginAttempt{IPAddress: "1.2.3.4", AttemptedAt: testStart}
	p.AnalyzeLoginAttempt(context.Background(), a)
	a.Success = true
	p.AnalyzeLoginAttempt(context.Background(), a)
	if logs.FilterMessage("security detector failed").Len() < 3 {
		t.Fatalf("expected detector failures to be logged, got %d", logs.Len())
	}
	if err := p.Record(context.Background(), Entry{Kind: KindLogout}); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("Record should surface the store error to its caller, got %v", err)
	}
}

func TestEveryKindHasValidSeverity(t *testing.T) {
	all := Kinds()
	if len(all) != 18 {
		t.Fatalf("expected 18 registered kinds, got %d", len(all))
	}
	for _, k := range all {
		s, ok := SeverityOf(k)
		if !ok || !s.Valid() {
			t.Fatalf("kind %s has no valid severity", k)
		}
	}
	if _, ok := SeverityOf(Kind("made_up")); ok {
		t.Fatalf("unregistered kind reported as known")
	}
}
