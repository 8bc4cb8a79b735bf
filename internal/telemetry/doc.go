// Package telemetry records security events and runs the login anomaly
// detectors.
//
// Every event kind has a fixed severity (see [SeverityOf]). Callers may raise
// it through [Entry.Severity] but never lower it. Unregistered kinds are
// stored as low and logged.
//
// Detectors run synchronously after a login attempt is stored. They are
// best-effort: a failing query is logged and the request continues. Their
// findings are written back as events, so detection never bypasses the
// audit trail.
//
// Events at or above the configured alert severity are also handed to an
// [Emitter], normally an [audit.Dispatcher].
package telemetry
