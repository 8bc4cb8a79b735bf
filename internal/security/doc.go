// Package security builds the operator-facing posture report of a
// configured engine.
package security
