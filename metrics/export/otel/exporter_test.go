package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/sessioncore"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot sessioncore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() sessioncore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := sessioncore.MetricsSnapshot{
		Counters:   make(map[sessioncore.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[sessioncore.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	out.Events = append(out.Events, f.snapshot.Events...)
	return out
}

func (f *fakeSource) AlertsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("sessioncore-test")

	src := &fakeSource{
		snapshot: sessioncore.MetricsSnapshot{
			Counters: map[sessioncore.MetricID]uint64{
				sessioncore.MetricLoginSuccess: 3,
			},
			Histograms: map[sessioncore.MetricID][]uint64{
				sessioncore.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			Events: []sessioncore.SecurityEventCount{
				{Kind: "ip_blocked", Severity: "high", Count: 4},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}

	found := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m.Data
		}
	}
	sum, ok := found["sessioncore_login_success_total"].(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected login counter %+v", found["sessioncore_login_success_total"])
	}
	events, ok := found["sessioncore_security_events_total"].(metricdata.Sum[int64])
	if !ok || len(events.DataPoints) != 1 || events.DataPoints[0].Value != 4 {
		t.Fatalf("unexpected security events %+v", found["sessioncore_security_events_total"])
	}
	if v, _ := events.DataPoints[0].Attributes.Value("kind"); v.AsString() != "ip_blocked" {
		t.Fatalf("expected kind attribute, got %v", v)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("sessioncore-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("sessioncore-test")

	src := &fakeSource{
		snapshot: sessioncore.MetricsSnapshot{
			Counters: map[sessioncore.MetricID]uint64{
				sessioncore.MetricLoginSuccess: 1,
			},
			Histograms: map[sessioncore.MetricID][]uint64{
				sessioncore.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[sessioncore.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
