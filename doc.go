// Package sessioncore issues, verifies, rotates and revokes session
// credentials, throttles abusive traffic, guards state-changing requests
// against cross-site forgery, verifies TOTP second factors and records
// security events with anomaly detection.
//
// # Architecture
//
// An [Engine] is assembled once by a [Builder] and composes five components:
//
//   - Token manager (internal/tokens, jwt): signed access and refresh tokens,
//     revocation by token hash, refresh rotation with reuse rejection.
//   - Rate limiter (internal/rate): tiered sliding windows over Redis or an
//     in-process LRU.
//   - CSRF guard (internal/csrf): double-submit cookie backed by stored hashes.
//   - MFA engine (internal/mfa): RFC 6238 codes and single-use backup codes.
//   - Telemetry pipeline (internal/telemetry): typed security events, login
//     detectors, address blocking and alert forwarding.
//
// Login, signup, refresh and logout are orchestrated in internal/flows. HTTP
// handlers live in httpapi and middleware; persistence in store.
//
// # Request metadata
//
// Attach the client address and user agent with [WithClientIP] and
// [WithUserAgent] before calling the engine. The middleware package does this
// for HTTP requests.
//
// # Failure policy
//
// Token verification fails closed when the revocation store is unreachable.
// The rate limiter fails open unless configured otherwise. Telemetry writes
// survive request cancellation and never fail a request.
package sessioncore
