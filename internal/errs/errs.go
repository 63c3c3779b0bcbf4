// Package errs defines the error taxonomy shared across the runtime (§7).
//
// Most of these are sentinel values meant to be compared with errors.Is, not
// wrapped with call-site-specific detail — the detail belongs in the
// %w-wrapped message, the sentinel is what callers switch on.
package errs

import "errors"

var (
	// ErrBusClosed is returned by Subscribe on a closed bus (§4.1).
	ErrBusClosed = errors.New("bus closed")

	// ErrMalformedMessage marks a message a subscriber could not decode.
	// Logged and dropped; the subscription continues (§7).
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvariantViolation marks a locally-handled no-op, such as closing a
	// position that was never opened (§7).
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrCapacityRejection marks a builder deployment refused for capacity
	// or cooldown reasons (§7, §4.11).
	ErrCapacityRejection = errors.New("capacity rejection")

	// ErrRiskBreach marks a risk-manager-triggered halt (§7, §4.9).
	ErrRiskBreach = errors.New("risk breach")
)
