package sponsorship

import "errors"

var (
	// ErrInsufficientCredit is returned when the active funding source cannot
	// cover the estimated fee or a requested withdrawal.
	ErrInsufficientCredit = errors.New("sponsorship: insufficient credit")
	// ErrTargetNotSponsorable is returned when the request target is outside
	// the eligibility set.
	ErrTargetNotSponsorable = errors.New("sponsorship: target not sponsorable")
	// ErrTokenNotEligible is returned for deposits of a token identifier the
	// administrator has not enabled.
	ErrTokenNotEligible = errors.New("sponsorship: token not eligible")
	// ErrInsufficientAllowance is returned when the external token system has
	// not approved the sponsor for the deposit amount.
	ErrInsufficientAllowance = errors.New("sponsorship: insufficient token allowance")
	// ErrReentrantCall is returned when a forwarded target calls back into a
	// guarded operation before the fee debit completes.
	ErrReentrantCall = errors.New("sponsorship: reentrant call")
	// ErrInvalidAmount is returned for nil, zero, or negative amounts.
	ErrInvalidAmount = errors.New("sponsorship: invalid amount")
	// ErrPoolUnderfunded is returned when the held pool no longer covers an
	// amount the credit ledger says is owed. The ledger is an allocation of
	// the pool, so this only happens after an emergency withdraw; it must
	// surface rather than be papered over.
	ErrPoolUnderfunded = errors.New("sponsorship: held pool does not cover ledger debit")
)
