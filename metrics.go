package sessioncore

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	// MetricLoginBlocked counts logins refused because the address was blocked.
	MetricLoginBlocked
	MetricMFARequired
	MetricMFAFailure
	MetricSessionCreated
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts presentations of an already rotated
	// refresh token.
	MetricRefreshReuseDetected
	MetricLogout
	MetricAccountCreated
	MetricAccountDuplicate
	MetricRateLimitAllowed
	MetricRateLimitDenied
	// MetricRateLimitFailOpen counts requests admitted only because the
	// backend failed.
	MetricRateLimitFailOpen
	MetricCSRFFailure
	MetricAuthFailure
	MetricMFAEnabled
	MetricMFADisabled
	MetricBackupCodeUsed
	MetricBackupCodeRegenerated
	MetricSweepRun
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type eventKey struct {
	kind     string
	severity string
}

// Metrics holds lock-free engine counters, one latency histogram and the
// per-kind security event counts.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram

	mu     sync.Mutex
	events map[eventKey]uint64
}

// SecurityEventCount is the number of recorded events of one kind and severity.
type SecurityEventCount struct {
	Kind     string
	Severity string
	Count    uint64
}

type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// Events is sorted by kind, then severity.
	Events []SecurityEventCount
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled,
		events:        make(map[eventKey]uint64),
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricValidateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// SecurityEvent counts one recorded event.
func (m *Metrics) SecurityEvent(kind, severity string) {
	if m == nil || !m.enabled {
		return
	}
	m.mu.Lock()
	m.events[eventKey{kind: kind, severity: severity}]++
	m.mu.Unlock()
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. A disabled Metrics returns empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	m.mu.Lock()
	s.Events = make([]SecurityEventCount, 0, len(m.events))
	for k, n := range m.events {
		s.Events = append(s.Events, SecurityEventCount{Kind: k.kind, Severity: k.severity, Count: n})
	}
	m.mu.Unlock()
	sort.Slice(s.Events, func(i, j int) bool {
		if s.Events[i].Kind != s.Events[j].Kind {
			return s.Events[i].Kind < s.Events[j].Kind
		}
		return s.Events[i].Severity < s.Events[j].Severity
	})
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
