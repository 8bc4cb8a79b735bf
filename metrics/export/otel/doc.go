// Package otel bridges engine metrics to an OpenTelemetry meter using
// observable instruments, so values are read only when a reader collects.
package otel
