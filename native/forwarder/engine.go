// Package forwarder verifies signed forward requests, enforces per-signer
// replay counters, and performs the requested inner call with the original
// signer exposed as the logical caller.
package forwarder

import (
	"fmt"
	"math/big"

	"gasstation/core/events"
	"gasstation/core/types"
	"gasstation/native/admin"
)

// State is the persistent access the engine needs. The replay counters are
// owned exclusively by this engine; nothing else writes them.
type State interface {
	admin.State
	ForwarderNonce(signer []byte) (*big.Int, error)
	SetForwarderNonce(signer []byte, nonce *big.Int) error
	TrustedSponsor(addr []byte) (bool, error)
	SetTrustedSponsor(addr []byte, trusted bool) error
}

// Engine composes the signature verifier, the replay counter, and the call
// backend.
type Engine struct {
	domain  types.Domain
	state   State
	invoker Invoker
	emitter events.Emitter
}

// NewEngine wires the engine. The domain is fixed for the deployment's
// lifetime; off-chain signers read it back via Domain to reconstruct digests.
func NewEngine(domain types.Domain, st State, invoker Invoker) *Engine {
	return &Engine{
		domain:  domain,
		state:   st,
		invoker: invoker,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter installs an event sink. A nil emitter resets to the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Domain returns the deployment's signing domain.
func (e *Engine) Domain() types.Domain {
	return e.domain
}

// CurrentNonce returns the signer's replay counter.
func (e *Engine) CurrentNonce(signer []byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("forwarder engine not initialised")
	}
	return e.state.ForwarderNonce(signer)
}

// Verify checks the signature over the domain-bound digest and requires the
// request counter to equal the signer's stored counter. Every failure mode
// maps to ErrSignatureMismatch: the counter is part of the signed digest, so a
// stale counter and a forged signature are the same condition.
func (e *Engine) Verify(req *types.ForwardRequest, sig []byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("forwarder engine not initialised")
	}
	if req == nil {
		return ErrSignatureMismatch
	}
	if err := req.Validate(); err != nil {
		return ErrSignatureMismatch
	}
	if !req.VerifySignature(e.domain, sig) {
		return ErrSignatureMismatch
	}
	current, err := e.state.ForwarderNonce(req.Signer)
	if err != nil {
		return err
	}
	if current.Cmp(req.NonceValue()) != 0 {
		return ErrSignatureMismatch
	}
	return nil
}

// Execute verifies the request, advances the signer's counter by exactly one,
// and performs the inner call. The inner call's failure is reported in the
// returned CallResult, never as an error: the counter has advanced either way
// and the identical signed bytes can never be submitted again.
func (e *Engine) Execute(req *types.ForwardRequest, sig []byte) (CallResult, error) {
	return e.execute(req, sig, nil)
}

// ExecuteAsSponsor behaves like Execute but records the sponsor identity and
// requires it to be registered in the trust registry.
func (e *Engine) ExecuteAsSponsor(req *types.ForwardRequest, sig []byte, sponsor []byte) (CallResult, error) {
	if e == nil || e.state == nil {
		return CallResult{}, fmt.Errorf("forwarder engine not initialised")
	}
	trusted, err := e.state.TrustedSponsor(sponsor)
	if err != nil {
		return CallResult{}, err
	}
	if !trusted {
		return CallResult{}, ErrUntrustedSponsor
	}
	return e.execute(req, sig, sponsor)
}

func (e *Engine) execute(req *types.ForwardRequest, sig []byte, sponsor []byte) (CallResult, error) {
	if e == nil || e.state == nil {
		return CallResult{}, fmt.Errorf("forwarder engine not initialised")
	}
	if e.invoker == nil {
		return CallResult{}, ErrNilInvoker
	}
	if err := e.Verify(req, sig); err != nil {
		return CallResult{}, err
	}

	current, err := e.state.ForwarderNonce(req.Signer)
	if err != nil {
		return CallResult{}, err
	}
	next := new(big.Int).Add(current, big.NewInt(1))
	if err := e.state.SetForwarderNonce(req.Signer, next); err != nil {
		return CallResult{}, err
	}

	result := e.invoker.Invoke(Call{
		Caller:   req.Signer,
		Target:   req.Target,
		Value:    new(big.Int).Set(valueOrZero(req.Value)),
		GasLimit: req.FeeLimit,
		Payload:  req.Payload,
	})

	evt := events.ForwardExecuted{Nonce: current, InnerSuccess: result.Success}
	copy(evt.Signer[:], req.Signer)
	copy(evt.Target[:], req.Target)
	if len(sponsor) == 20 {
		copy(evt.Sponsor[:], sponsor)
	}
	e.emitter.Emit(evt)

	return result, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// IsTrustedSponsor reports whether the address is in the trust registry.
func (e *Engine) IsTrustedSponsor(addr []byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, fmt.Errorf("forwarder engine not initialised")
	}
	return e.state.TrustedSponsor(addr)
}

// AddTrustedSponsor registers a sponsor identity. Administrator only.
func (e *Engine) AddTrustedSponsor(c admin.Capability, addr []byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("forwarder engine not initialised")
	}
	if err := c.Verify(e.state); err != nil {
		return err
	}
	if len(addr) != 20 {
		return fmt.Errorf("sponsor address must be 20 bytes")
	}
	return e.state.SetTrustedSponsor(addr, true)
}

// RemoveTrustedSponsor revokes a sponsor identity. Administrator only.
func (e *Engine) RemoveTrustedSponsor(c admin.Capability, addr []byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("forwarder engine not initialised")
	}
	if err := c.Verify(e.state); err != nil {
		return err
	}
	if len(addr) != 20 {
		return fmt.Errorf("sponsor address must be 20 bytes")
	}
	return e.state.SetTrustedSponsor(addr, false)
}
