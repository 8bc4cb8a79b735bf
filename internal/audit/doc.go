// Package audit delivers security alerts to external sinks asynchronously.
//
// # Components
//
//   - [Sink]: interface for alert consumers (log, webhook, Kafka, channel, JSON writer).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: the alert record handed to sinks.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which
// events become alerts; the telemetry pipeline does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import sessioncore or any sibling internal package other than logging.
package audit
