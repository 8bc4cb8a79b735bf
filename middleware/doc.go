// Package middleware adapts sessioncore.Engine to net/http.
//
// # Chain
//
//   - [ClientInfo] attaches the client address and user agent to the context.
//   - [RateLimit] counts the request and answers 429 when the tier is spent.
//   - [RequireAuth] verifies the bearer access token and stores the
//     [sessioncore.Principal].
//   - [RequireCSRF] checks the double-submitted token on state-changing methods.
//
// [WriteError] maps engine errors to status codes. Response bodies carry a
// generic message only.
//
// This package makes no authentication decisions of its own; every check is
// delegated to the Engine.
package middleware
