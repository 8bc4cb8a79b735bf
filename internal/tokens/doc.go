// Package tokens issues, verifies, revokes and rotates session tokens.
//
// Tokens are stateless until revoked. Revocation writes the SHA-256 of the
// token with the token's own expiry, so lookups are a single primary-key read
// and records become garbage once the token could no longer verify anyway.
//
// # Failure policy
//
// A revocation-store failure during [Manager.Verify] fails closed with
// [ErrRevocationUnavailable]. Rotation revokes the presented refresh token
// before signing its replacement; if the revoke loses a race the caller gets
// [ErrTokenRevoked] and no new token exists.
//
// # What this package must NOT do
//
//   - Persist or log raw tokens.
//   - Decide HTTP status codes.
package tokens
