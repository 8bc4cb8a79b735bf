package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrEthical07/sessioncore/store"
)

// StoreObserver records statement latency and outcome per store operation.
// Pass Observe to store.Store.SetObserver and register Collectors with the
// exporter registry.
type StoreObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

func NewStoreObserver() *StoreObserver {
	return &StoreObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sessioncore_store_query_duration_seconds",
			Help:    "Store statement latency.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessioncore_store_errors_total",
			Help: "Store statements that failed, by kind of failure.",
		}, []string{"op", "kind"}),
	}
}

// Observe matches store.Observer. Not-found results are expected lookups and
// are not counted as errors.
func (o *StoreObserver) Observe(op string, d time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(d.Seconds())
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return
	}
	o.errors.WithLabelValues(op, errorKind(err)).Inc()
}

func (o *StoreObserver) Collectors() []prometheus.Collector {
	return []prometheus.Collector{o.duration, o.errors}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, store.ErrTimeout):
		return "timeout"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	default:
		return "other"
	}
}
