package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/sessioncore"
	internalmetrics "github.com/MrEthical07/sessioncore/internal/metrics"
)

type fakeSource struct {
	snapshot sessioncore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() sessioncore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AlertsDropped() uint64                        { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: sessioncore.MetricsSnapshot{
			Counters:   map[sessioncore.MetricID]uint64{},
			Histograms: map[sessioncore.MetricID][]uint64{},
		},
	})

	if got := testutil.CollectAndCount(exp); got != 0 {
		t.Fatalf("expected no metrics for disabled engine, got %d", got)
	}
}

func TestScrapeIncludesCountersHistogramAndEvents(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: sessioncore.MetricsSnapshot{
			Counters: map[sessioncore.MetricID]uint64{
				sessioncore.MetricLoginSuccess: 7,
			},
			Histograms: map[sessioncore.MetricID][]uint64{
				sessioncore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			Events: []sessioncore.SecurityEventCount{
				{Kind: "ip_blocked", Severity: "high", Count: 2},
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"sessioncore_login_success_total 7",
		`sessioncore_validate_latency_seconds_bucket{le="0.005"} 1`,
		`sessioncore_validate_latency_seconds_bucket{le="+Inf"} 36`,
		`sessioncore_security_events_total{kind="ip_blocked",severity="high"} 2`,
		"sessioncore_alerts_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRegisterStoreObserver(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: sessioncore.MetricsSnapshot{
			Counters: map[sessioncore.MetricID]uint64{sessioncore.MetricLogout: 1},
		},
	})
	obs := internalmetrics.NewStoreObserver()
	if err := exp.Register(obs.Collectors()...); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	obs.Observe("ping", 0, nil)

	if out := scrape(t, exp); !strings.Contains(out, `sessioncore_store_query_duration_seconds_count{op="ping"} 1`) {
		t.Fatalf("expected store histogram in output, got:\n%s", out)
	}
	if err := exp.Register(obs.Collectors()...); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
