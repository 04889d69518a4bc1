package forwarder

import "math/big"

// Call describes the inner action a verified request asks for. Caller carries
// the original signer so the target observes the logical caller, not the
// relaying party.
type Call struct {
	Caller   []byte
	Target   []byte
	Value    *big.Int
	GasLimit uint64
	Payload  []byte
}

// CallResult is the raw outcome of an inner call. The forwarder never
// interprets Data; it only threads it through to the submitter.
type CallResult struct {
	Success bool
	Data    []byte
}

// Invoker performs the arbitrary inner call. It is supplied by the execution
// environment; a failed inner call is reported through CallResult, never as a
// Go error.
type Invoker interface {
	Invoke(call Call) CallResult
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(call Call) CallResult

// Invoke implements the Invoker interface.
func (f InvokerFunc) Invoke(call Call) CallResult { return f(call) }
