package forwarder

import "errors"

var (
	// ErrSignatureMismatch covers every verification failure: forged
	// signatures, malformed signatures, and stale or future replay counters.
	// Callers cannot and must not distinguish between those causes.
	ErrSignatureMismatch = errors.New("forwarder: signature does not match request")
	// ErrUntrustedSponsor is returned when the sponsored entry point is
	// invoked by an identity outside the trust registry.
	ErrUntrustedSponsor = errors.New("forwarder: not trusted sponsor")
	// ErrNilInvoker is returned when the engine was wired without a call
	// backend.
	ErrNilInvoker = errors.New("forwarder: nil invoker")
)
