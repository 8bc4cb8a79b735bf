// Package prometheus exposes engine metrics as a client_golang collector
// with its own registry and promhttp handler.
package prometheus
