package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"gasstation/core/types"
	"gasstation/crypto"
)

const (
	// TypeSponsorshipApplied indicates a request's fee was paid by the sponsor.
	TypeSponsorshipApplied = "sponsorship.applied"
	// TypeSponsorshipRejected indicates the sponsorship gate refused a request.
	TypeSponsorshipRejected = "sponsorship.rejected"
	// TypeCreditDeposited indicates a credit top-up was recorded.
	TypeCreditDeposited = "sponsorship.credit.deposited"
	// TypeCreditWithdrawn indicates credit was returned to its owner.
	TypeCreditWithdrawn = "sponsorship.credit.withdrawn"
	// TypeTokenDeposited indicates a token balance was pulled in and recorded.
	TypeTokenDeposited = "sponsorship.token.deposited"
	// TypeTokenWithdrawn indicates a recorded token deposit was paid back out.
	TypeTokenWithdrawn = "sponsorship.token.withdrawn"
	// TypeEmergencyWithdraw indicates the administrator drained the pool.
	TypeEmergencyWithdraw = "sponsorship.emergency_withdraw"
)

// SponsorshipApplied captures a paid-for forwarded request.
type SponsorshipApplied struct {
	Signer       [20]byte
	Target       [20]byte
	Fee          *big.Int
	InnerSuccess bool
	OwnerFunded  bool
}

// EventType satisfies the events.Event interface.
func (SponsorshipApplied) EventType() string { return TypeSponsorshipApplied }

// Event renders the applied sponsorship payload.
func (e SponsorshipApplied) Event() *types.Event {
	attrs := map[string]string{
		"signer":       crypto.MustNewAddress(crypto.GasPrefix, e.Signer[:]).String(),
		"target":       "0x" + hex.EncodeToString(e.Target[:]),
		"innerSuccess": strconv.FormatBool(e.InnerSuccess),
		"ownerFunded":  strconv.FormatBool(e.OwnerFunded),
	}
	if e.Fee != nil {
		attrs["fee"] = new(big.Int).Set(e.Fee).String()
	}
	return &types.Event{Type: TypeSponsorshipApplied, Attributes: attrs}
}

// SponsorshipRejected captures why the sponsorship gate refused a request.
type SponsorshipRejected struct {
	Signer [20]byte
	Target [20]byte
	Reason string
}

// EventType satisfies the events.Event interface.
func (SponsorshipRejected) EventType() string { return TypeSponsorshipRejected }

// Event renders the rejection payload.
func (e SponsorshipRejected) Event() *types.Event {
	attrs := map[string]string{
		"signer": crypto.MustNewAddress(crypto.GasPrefix, e.Signer[:]).String(),
		"target": "0x" + hex.EncodeToString(e.Target[:]),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeSponsorshipRejected, Attributes: attrs}
}

// CreditDeposited captures a credit ledger top-up.
type CreditDeposited struct {
	User       [20]byte
	Amount     *big.Int
	NewBalance *big.Int
}

// EventType satisfies the events.Event interface.
func (CreditDeposited) EventType() string { return TypeCreditDeposited }

// Event renders the deposit payload.
func (e CreditDeposited) Event() *types.Event {
	return creditEvent(TypeCreditDeposited, e.User, e.Amount, e.NewBalance)
}

// CreditWithdrawn captures a credit ledger withdrawal.
type CreditWithdrawn struct {
	User       [20]byte
	Amount     *big.Int
	NewBalance *big.Int
}

// EventType satisfies the events.Event interface.
func (CreditWithdrawn) EventType() string { return TypeCreditWithdrawn }

// Event renders the withdrawal payload.
func (e CreditWithdrawn) Event() *types.Event {
	return creditEvent(TypeCreditWithdrawn, e.User, e.Amount, e.NewBalance)
}

func creditEvent(eventType string, user [20]byte, amount, balance *big.Int) *types.Event {
	attrs := map[string]string{
		"user": crypto.MustNewAddress(crypto.GasPrefix, user[:]).String(),
	}
	if amount != nil {
		attrs["amount"] = new(big.Int).Set(amount).String()
	}
	if balance != nil {
		attrs["newBalance"] = new(big.Int).Set(balance).String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// TokenDeposited captures a pulled-in token deposit.
type TokenDeposited struct {
	User    [20]byte
	TokenID string
	Amount  *big.Int
}

// EventType satisfies the events.Event interface.
func (TokenDeposited) EventType() string { return TypeTokenDeposited }

// Event renders the token deposit payload.
func (e TokenDeposited) Event() *types.Event {
	attrs := map[string]string{
		"user":  crypto.MustNewAddress(crypto.GasPrefix, e.User[:]).String(),
		"token": strings.ToUpper(strings.TrimSpace(e.TokenID)),
	}
	if e.Amount != nil {
		attrs["amount"] = new(big.Int).Set(e.Amount).String()
	}
	return &types.Event{Type: TypeTokenDeposited, Attributes: attrs}
}

// TokenWithdrawn captures a token deposit paid back to its owner.
type TokenWithdrawn struct {
	User    [20]byte
	TokenID string
	Amount  *big.Int
}

// EventType satisfies the events.Event interface.
func (TokenWithdrawn) EventType() string { return TypeTokenWithdrawn }

// Event renders the token withdrawal payload.
func (e TokenWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"user":  crypto.MustNewAddress(crypto.GasPrefix, e.User[:]).String(),
		"token": strings.ToUpper(strings.TrimSpace(e.TokenID)),
	}
	if e.Amount != nil {
		attrs["amount"] = new(big.Int).Set(e.Amount).String()
	}
	return &types.Event{Type: TypeTokenWithdrawn, Attributes: attrs}
}

// EmergencyWithdraw captures the administrator draining the sponsor pool.
type EmergencyWithdraw struct {
	Owner  [20]byte
	Amount *big.Int
}

// EventType satisfies the events.Event interface.
func (EmergencyWithdraw) EventType() string { return TypeEmergencyWithdraw }

// Event renders the drain payload.
func (e EmergencyWithdraw) Event() *types.Event {
	attrs := map[string]string{
		"owner": crypto.MustNewAddress(crypto.GasPrefix, e.Owner[:]).String(),
	}
	if e.Amount != nil {
		attrs["amount"] = new(big.Int).Set(e.Amount).String()
	}
	return &types.Event{Type: TypeEmergencyWithdraw, Attributes: attrs}
}
