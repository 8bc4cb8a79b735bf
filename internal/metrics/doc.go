// Package metrics instruments the relational store for Prometheus.
//
// Engine counters live in the root package and are exported by
// metrics/export. This package covers what the engine cannot see from the
// outside: per-statement latency and failure kinds reported through
// store.Observer.
package metrics
