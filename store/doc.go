// Package store is the relational persistence layer for revocations, CSRF tokens,
// login attempts, security events, backup codes and the users collaborator table.
//
// # Drivers
//
// PostgreSQL ("postgres", lib/pq) is the production target. SQLite ("sqlite",
// modernc.org/sqlite) backs development and tests; ":memory:" works because the
// pool is pinned to one connection for that driver.
//
// Statements are written with "?" placeholders and rebound per driver. Every
// timestamp is stored as BIGINT Unix milliseconds so window predicates behave
// the same on both engines.
//
// # Architecture boundaries
//
// Each exported method is one parameterized statement (or one short transaction
// when a set must be replaced atomically), bounded by [Config.QueryTimeout].
// Deadline overruns surface as [ErrTimeout]; every other driver failure as
// [ErrUnavailable].
//
// # What this package must NOT do
//
//   - Store raw tokens, raw backup codes or plaintext emails outside the users table.
//   - Build SQL by concatenating caller-supplied values.
//   - Import sessioncore or any internal package.
package store
