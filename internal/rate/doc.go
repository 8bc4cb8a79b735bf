// Package rate implements the sliding-window request limiter.
//
// # Window semantics
//
// Each counter is keyed by "rl:<identifier>:<endpoint class>:<METHOD>" where the
// endpoint class is the path with UUID segments replaced by ":id". A request is
// admitted when fewer than Limit requests were admitted in [now-Window, now];
// rejected requests are not recorded, so they do not extend the block.
//
// # Backends
//
//   - [RedisBackend]: sorted set per key, one Lua script per check, for multi-instance deployments.
//   - [MemoryBackend]: bounded LRU of per-key windows for single instances and tests.
//
// Under heavy concurrency on one key a small over-admission across instances is
// accepted; there is never coordination across keys.
//
// # What this package must NOT do
//
//   - Resolve identities from tokens (callers pass the identifier).
//   - Write HTTP responses.
package rate
