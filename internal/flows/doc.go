// Package flows contains the orchestrators behind every session operation:
// login, signup, refresh and logout.
//
// Each Run function takes a typed dependency struct of plain functions and
// returns results without side effects beyond those dependencies. The root
// engine wires the dependencies once; tests wire fakes.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessioncore (to avoid import cycles).
//   - Perform I/O directly.
package flows
