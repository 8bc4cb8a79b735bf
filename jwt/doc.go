// Package jwt signs and verifies the access and refresh tokens handed to clients.
//
// Tokens carry sub, email, typ (access or refresh), sid, iat, exp and a random
// jti. Verification is strict: the algorithm is pinned, exp is required and
// the typ claim must match what the caller expects.
package jwt
