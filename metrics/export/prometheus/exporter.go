package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() sessioncore.MetricsSnapshot
	AlertsDropped() uint64
}

// PrometheusExporter publishes engine counters through a private registry.
// The snapshot is read on every scrape; nothing is cached.
type PrometheusExporter struct {
	source   metricsSource
	registry *prometheus.Registry

	counters      []*prometheus.Desc
	histograms    []*prometheus.Desc
	events        *prometheus.Desc
	alertsDropped *prometheus.Desc
}

// NewPrometheusExporter reads from engine and registers the Go runtime and
// process collectors next to the engine metrics.
func NewPrometheusExporter(engine *sessioncore.Engine) *PrometheusExporter {
	p := NewPrometheusExporterFromSource(engine)
	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// NewPrometheusExporterFromSource builds an exporter over any snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:   source,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewDesc(internaldefs.SecurityEventsName, internaldefs.SecurityEventsHelp,
			[]string{"kind", "severity"}, nil),
		alertsDropped: prometheus.NewDesc(internaldefs.AlertsDroppedName, internaldefs.AlertsDroppedHelp, nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		p.counters = append(p.counters, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	for _, def := range internaldefs.HistogramDefs {
		p.histograms = append(p.histograms, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	p.registry.MustRegister(p)
	return p
}

// Register adds collectors, such as the store observer, to the exporter
// registry.
func (p *PrometheusExporter) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *PrometheusExporter) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range p.counters {
		ch <- d
	}
	for _, d := range p.histograms {
		ch <- d
	}
	ch <- p.events
	ch <- p.alertsDropped
}

// Collect emits nothing for a disabled engine, except dropped alerts once
// any have been dropped.
func (p *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	if p == nil || p.source == nil {
		return
	}
	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AlertsDropped()

	if len(snapshot.Counters) > 0 || len(snapshot.Histograms) > 0 {
		for i, def := range internaldefs.CounterDefs {
			ch <- prometheus.MustNewConstMetric(p.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
		}
		for i, def := range internaldefs.HistogramDefs {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
			buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
			for j, le := range internaldefs.HistogramUpperBounds {
				buckets[le] = cumulative[j]
			}
			// Sum is not tracked by the engine histogram.
			ch <- prometheus.MustNewConstHistogram(p.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
		}
		for _, ev := range snapshot.Events {
			ch <- prometheus.MustNewConstMetric(p.events, prometheus.CounterValue, float64(ev.Count), ev.Kind, ev.Severity)
		}
	}
	if dropped > 0 || len(snapshot.Counters) > 0 {
		ch <- prometheus.MustNewConstMetric(p.alertsDropped, prometheus.CounterValue, float64(dropped))
	}
}
