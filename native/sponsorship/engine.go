// Package sponsorship decides whether the fee for a forwarded request is paid
// out of pooled funds and performs the payment accounting. It gates on target
// eligibility and affordability, then calls the forwarder and debits the
// estimated fee whether or not the inner call succeeded: the sponsor pays for
// attempted work, mirroring the forwarder's soft-failure semantics.
package sponsorship

import (
	"fmt"
	"math/big"

	"gasstation/core/events"
	"gasstation/core/state"
	"gasstation/core/types"
	"gasstation/native/admin"
	"gasstation/native/forwarder"
)

// DefaultMarkupBps is the fee markup applied on top of the raw gas cost,
// expressed in basis points. 12_000 bps is a 1.2x multiplier.
const DefaultMarkupBps = 12_000

// State is the persistent access the engine needs. The credit and token
// ledgers are owned exclusively by this engine.
type State interface {
	admin.State
	CreditBalance(user []byte) (*big.Int, error)
	SetCreditBalance(user []byte, amount *big.Int) error
	TokenBalance(user []byte, tokenID string) (*big.Int, error)
	SetTokenBalance(user []byte, tokenID string, amount *big.Int) error
	SponsorableTarget(target []byte) (bool, error)
	SetSponsorableTarget(target []byte, enabled bool) error
	EligibleToken(tokenID string) (bool, error)
	SetEligibleToken(tokenID string, enabled bool) error
	PoolBalance() (*big.Int, error)
	SetPoolBalance(amount *big.Int) error
	TokenHeld(tokenID string) (*big.Int, error)
	SetTokenHeld(tokenID string, amount *big.Int) error
	SponsorFundingMode() (state.FundingMode, error)
	SetSponsorFundingMode(mode state.FundingMode) error
}

// PriceSource reports the environment's current unit fee price. EstimateFee is
// deterministic for a fixed price.
type PriceSource func() *big.Int

// Engine is the fee sponsor. Its identity must be pre-registered in the
// forwarder's trust registry for Sponsor to succeed.
type Engine struct {
	state     State
	forwarder *forwarder.Engine
	token     TokenBackend
	unitPrice PriceSource
	markupBps uint64
	self      [20]byte
	emitter   events.Emitter

	// Reentrancy guard for the sponsor/withdraw window. The inner forwarded
	// call runs arbitrary target code before the debit lands, so callbacks
	// into guarded operations must be rejected for that duration.
	inFlight bool
}

// NewEngine wires the sponsor. self is the sponsor identity the forwarder
// sees. A zero markup falls back to DefaultMarkupBps.
func NewEngine(st State, fwd *forwarder.Engine, token TokenBackend, unitPrice PriceSource, markupBps uint64, self []byte) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("sponsorship: nil state")
	}
	if fwd == nil {
		return nil, fmt.Errorf("sponsorship: nil forwarder")
	}
	if len(self) != 20 {
		return nil, fmt.Errorf("sponsorship: sponsor address must be 20 bytes")
	}
	if markupBps == 0 {
		markupBps = DefaultMarkupBps
	}
	e := &Engine{
		state:     st,
		forwarder: fwd,
		token:     token,
		unitPrice: unitPrice,
		markupBps: markupBps,
		emitter:   events.NoopEmitter{},
	}
	copy(e.self[:], self)
	return e, nil
}

// SetEmitter installs an event sink. A nil emitter resets to the no-op sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SponsorAddress returns the identity this engine presents to the forwarder.
func (e *Engine) SponsorAddress() []byte {
	out := make([]byte, len(e.self))
	copy(out, e.self[:])
	return out
}

// DepositCredit records funds attached by the caller as credit for the
// beneficiary (the caller itself when beneficiary is nil). The pool grows by
// the same amount, keeping the ledger covered by held funds.
func (e *Engine) DepositCredit(caller, beneficiary []byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	account := beneficiary
	if len(account) == 0 {
		account = caller
	}
	if len(account) != 20 {
		return fmt.Errorf("sponsorship: beneficiary address must be 20 bytes")
	}
	balance, err := e.state.CreditBalance(account)
	if err != nil {
		return err
	}
	newBalance := new(big.Int).Add(balance, amount)
	if err := e.state.SetCreditBalance(account, newBalance); err != nil {
		return err
	}
	pool, err := e.state.PoolBalance()
	if err != nil {
		return err
	}
	if err := e.state.SetPoolBalance(new(big.Int).Add(pool, amount)); err != nil {
		return err
	}

	evt := events.CreditDeposited{Amount: new(big.Int).Set(amount), NewBalance: newBalance}
	copy(evt.User[:], account)
	e.emitter.Emit(evt)
	return nil
}

// WithdrawCredit returns amount of the caller's credit. Rejected while a
// sponsored call is in flight and whenever the requested amount exceeds the
// recorded balance; the balance is left untouched on rejection.
func (e *Engine) WithdrawCredit(caller []byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if e.inFlight {
		return ErrReentrantCall
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := e.state.CreditBalance(caller)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientCredit
	}
	pool, err := e.state.PoolBalance()
	if err != nil {
		return err
	}
	if pool.Cmp(amount) < 0 {
		return ErrPoolUnderfunded
	}
	newBalance := new(big.Int).Sub(balance, amount)
	if err := e.state.SetCreditBalance(caller, newBalance); err != nil {
		return err
	}
	if err := e.state.SetPoolBalance(new(big.Int).Sub(pool, amount)); err != nil {
		return err
	}

	evt := events.CreditWithdrawn{Amount: new(big.Int).Set(amount), NewBalance: newBalance}
	copy(evt.User[:], caller)
	e.emitter.Emit(evt)
	return nil
}

// DepositToken pulls amount of tokenID from the caller through the external
// token system (which must hold a prior allowance for the sponsor) and records
// it in the caller's token balance.
func (e *Engine) DepositToken(caller []byte, tokenID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if e.token == nil {
		return fmt.Errorf("sponsorship: no token backend configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	eligible, err := e.state.EligibleToken(tokenID)
	if err != nil {
		return err
	}
	if !eligible {
		return ErrTokenNotEligible
	}
	allowance, err := e.token.Allowance(tokenID, caller, e.self[:])
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := e.token.TransferFrom(tokenID, caller, e.self[:], amount); err != nil {
		return err
	}
	balance, err := e.state.TokenBalance(caller, tokenID)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(caller, tokenID, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	held, err := e.state.TokenHeld(tokenID)
	if err != nil {
		return err
	}
	if err := e.state.SetTokenHeld(tokenID, new(big.Int).Add(held, amount)); err != nil {
		return err
	}

	evt := events.TokenDeposited{TokenID: tokenID, Amount: new(big.Int).Set(amount)}
	copy(evt.User[:], caller)
	e.emitter.Emit(evt)
	return nil
}

// WithdrawToken pays amount of tokenID from the sponsor's holding back to the
// caller and reduces the caller's recorded deposit. Rejected while a sponsored
// call is in flight; the recorded balances are left untouched on rejection.
func (e *Engine) WithdrawToken(caller []byte, tokenID string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if e.token == nil {
		return fmt.Errorf("sponsorship: no token backend configured")
	}
	if e.inFlight {
		return ErrReentrantCall
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := e.state.TokenBalance(caller, tokenID)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientCredit
	}
	held, err := e.state.TokenHeld(tokenID)
	if err != nil {
		return err
	}
	if held.Cmp(amount) < 0 {
		return ErrPoolUnderfunded
	}
	if err := e.token.Transfer(tokenID, e.self[:], caller, amount); err != nil {
		return err
	}
	if err := e.state.SetTokenBalance(caller, tokenID, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := e.state.SetTokenHeld(tokenID, new(big.Int).Sub(held, amount)); err != nil {
		return err
	}

	evt := events.TokenWithdrawn{TokenID: tokenID, Amount: new(big.Int).Set(amount)}
	copy(evt.User[:], caller)
	e.emitter.Emit(evt)
	return nil
}

// EstimateFee computes feeLimit * unitPrice * markupBps / 10_000. Two calls
// with identical inputs and an identical environment price return identical
// results.
func (e *Engine) EstimateFee(feeLimit uint64) *big.Int {
	price := big.NewInt(0)
	if e != nil && e.unitPrice != nil {
		if p := e.unitPrice(); p != nil && p.Sign() > 0 {
			price = p
		}
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(feeLimit), price)
	fee.Mul(fee, new(big.Int).SetUint64(e.markupBps))
	return fee.Quo(fee, big.NewInt(10_000))
}

// CanAfford reports whether the active funding source covers the estimated fee
// for the user.
func (e *Engine) CanAfford(user []byte, feeLimit uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, fmt.Errorf("sponsorship engine not initialised")
	}
	fee := e.EstimateFee(feeLimit)
	balance, err := e.fundingBalance(user)
	if err != nil {
		return false, err
	}
	return balance.Cmp(fee) >= 0, nil
}

// CanSponsor reports whether the target is eligible and the user can afford
// the fee. Both legs are required; neither one alone is sufficient.
func (e *Engine) CanSponsor(user, target []byte, feeLimit uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, fmt.Errorf("sponsorship engine not initialised")
	}
	sponsorable, err := e.state.SponsorableTarget(target)
	if err != nil {
		return false, err
	}
	if !sponsorable {
		return false, nil
	}
	return e.CanAfford(user, feeLimit)
}

// Sponsor gates the request on eligibility and affordability, forwards it
// through the trusted entry point, and unconditionally debits the estimated
// fee from the active funding source regardless of the inner call's outcome.
func (e *Engine) Sponsor(req *types.ForwardRequest, sig []byte) (forwarder.CallResult, error) {
	if e == nil || e.state == nil {
		return forwarder.CallResult{}, fmt.Errorf("sponsorship engine not initialised")
	}
	if e.inFlight {
		return forwarder.CallResult{}, ErrReentrantCall
	}
	if req == nil {
		return forwarder.CallResult{}, fmt.Errorf("sponsorship: nil request")
	}
	if err := req.Validate(); err != nil {
		return forwarder.CallResult{}, err
	}

	sponsorable, err := e.state.SponsorableTarget(req.Target)
	if err != nil {
		return forwarder.CallResult{}, err
	}
	if !sponsorable {
		e.emitRejected(req, "target not sponsorable")
		return forwarder.CallResult{}, ErrTargetNotSponsorable
	}
	fee := e.EstimateFee(req.FeeLimit)
	balance, err := e.fundingBalance(req.Signer)
	if err != nil {
		return forwarder.CallResult{}, err
	}
	if balance.Cmp(fee) < 0 {
		e.emitRejected(req, "insufficient credit")
		return forwarder.CallResult{}, ErrInsufficientCredit
	}

	e.inFlight = true
	defer func() { e.inFlight = false }()

	result, err := e.forwarder.ExecuteAsSponsor(req, sig, e.self[:])
	if err != nil {
		return forwarder.CallResult{}, err
	}
	ownerFunded, err := e.debitFee(req.Signer, fee)
	if err != nil {
		return forwarder.CallResult{}, err
	}

	evt := events.SponsorshipApplied{
		Fee:          fee,
		InnerSuccess: result.Success,
		OwnerFunded:  ownerFunded,
	}
	copy(evt.Signer[:], req.Signer)
	copy(evt.Target[:], req.Target)
	e.emitter.Emit(evt)
	return result, nil
}

// fundingBalance resolves the balance the affordability gate reads under the
// active funding mode.
func (e *Engine) fundingBalance(user []byte) (*big.Int, error) {
	mode, err := e.state.SponsorFundingMode()
	if err != nil {
		return nil, err
	}
	if mode == state.FundingModeOwnerPool {
		return e.state.PoolBalance()
	}
	return e.state.CreditBalance(user)
}

// debitFee applies the fee against the active funding source. Reports whether
// the owner pool paid. The affordability gate already checked the funding
// balance and the reentrancy guard keeps it from moving in between, so an
// underfunded pool here means the ledger is no longer covered (an emergency
// withdraw happened) and the debit fails loudly.
func (e *Engine) debitFee(user []byte, fee *big.Int) (bool, error) {
	mode, err := e.state.SponsorFundingMode()
	if err != nil {
		return false, err
	}
	pool, err := e.state.PoolBalance()
	if err != nil {
		return false, err
	}
	if pool.Cmp(fee) < 0 {
		return mode == state.FundingModeOwnerPool, ErrPoolUnderfunded
	}
	if mode == state.FundingModeOwnerPool {
		return true, e.state.SetPoolBalance(new(big.Int).Sub(pool, fee))
	}
	balance, err := e.state.CreditBalance(user)
	if err != nil {
		return false, err
	}
	remaining := new(big.Int).Sub(balance, fee)
	if remaining.Sign() < 0 {
		remaining = big.NewInt(0)
	}
	if err := e.state.SetCreditBalance(user, remaining); err != nil {
		return false, err
	}
	return false, e.state.SetPoolBalance(new(big.Int).Sub(pool, fee))
}

func (e *Engine) emitRejected(req *types.ForwardRequest, reason string) {
	evt := events.SponsorshipRejected{Reason: reason}
	copy(evt.Signer[:], req.Signer)
	copy(evt.Target[:], req.Target)
	e.emitter.Emit(evt)
}

// CreditBalance returns the user's recorded credit.
func (e *Engine) CreditBalance(user []byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("sponsorship engine not initialised")
	}
	return e.state.CreditBalance(user)
}

// TokenBalance returns the user's recorded deposit for the token.
func (e *Engine) TokenBalance(user []byte, tokenID string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("sponsorship engine not initialised")
	}
	return e.state.TokenBalance(user, tokenID)
}

// FundingMode returns the active funding mode.
func (e *Engine) FundingMode() (state.FundingMode, error) {
	if e == nil || e.state == nil {
		return state.FundingModeUserCredit, fmt.Errorf("sponsorship engine not initialised")
	}
	return e.state.SponsorFundingMode()
}

// --- Administrative controls ---

// SetSponsorableTarget toggles a target's eligibility. Administrator only.
func (e *Engine) SetSponsorableTarget(c admin.Capability, target []byte, enabled bool) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if err := c.Verify(e.state); err != nil {
		return err
	}
	if len(target) != 20 {
		return fmt.Errorf("sponsorship: target address must be 20 bytes")
	}
	return e.state.SetSponsorableTarget(target, enabled)
}

// SetEligibleToken toggles a token identifier's eligibility. Administrator
// only.
func (e *Engine) SetEligibleToken(c admin.Capability, tokenID string, enabled bool) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if err := c.Verify(e.state); err != nil {
		return err
	}
	return e.state.SetEligibleToken(tokenID, enabled)
}

// SetFundingMode switches between user-funded credit and the owner-funded
// pool. Administrator only.
func (e *Engine) SetFundingMode(c admin.Capability, mode state.FundingMode) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("sponsorship engine not initialised")
	}
	if err := c.Verify(e.state); err != nil {
		return err
	}
	return e.state.SetSponsorFundingMode(mode)
}

// EmergencyWithdraw drains the sponsor's entire held pool to the
// administrator, leaving the pool at zero. It deliberately ignores outstanding
// credit-ledger liabilities; that is a documented trust assumption of the
// single-administrator model, not an accounting bug. Administrator only.
func (e *Engine) EmergencyWithdraw(c admin.Capability) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("sponsorship engine not initialised")
	}
	if err := c.Verify(e.state); err != nil {
		return nil, err
	}
	if e.inFlight {
		return nil, ErrReentrantCall
	}
	pool, err := e.state.PoolBalance()
	if err != nil {
		return nil, err
	}
	if err := e.state.SetPoolBalance(big.NewInt(0)); err != nil {
		return nil, err
	}

	evt := events.EmergencyWithdraw{Amount: new(big.Int).Set(pool)}
	copy(evt.Owner[:], c.Holder())
	e.emitter.Emit(evt)
	return pool, nil
}
