// Package internal contains helper utilities that are intentionally private to sessioncore:
// secure random generation, hashing and constant-time comparison.
//
// # Sub-packages
//
//   - audit: async alert dispatch (Dispatcher + Sink implementations)
//   - clock: injectable time source
//   - csrf: double-submit cookie guard
//   - flows: login, refresh, logout and signup orchestration
//   - logging: zap logger construction
//   - metrics: Prometheus collectors for store queries
//   - mfa: TOTP and backup codes
//   - rate: sliding-window request limiter with Redis and in-process backends
//   - reqctx: request-scoped client metadata
//   - security: operator-facing posture report
//   - telemetry: security events, severities and anomaly detectors
//   - tokens: token issuance, verification, revocation and rotation
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessioncore API.
//   - Be imported by any package outside the sessioncore module.
package internal
