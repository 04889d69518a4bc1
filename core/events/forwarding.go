package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"gasstation/core/types"
	"gasstation/crypto"
)

const (
	// TypeForwardExecuted indicates a verified request was forwarded to its
	// target. Emitted whether or not the inner call succeeded.
	TypeForwardExecuted = "forwarder.executed"
)

// ForwardExecuted captures the outcome of one forwarded request.
type ForwardExecuted struct {
	Signer       [20]byte
	Target       [20]byte
	Nonce        *big.Int
	Sponsor      [20]byte
	InnerSuccess bool
}

// EventType satisfies the events.Event interface.
func (ForwardExecuted) EventType() string { return TypeForwardExecuted }

// Event renders the forwarded-call payload.
func (e ForwardExecuted) Event() *types.Event {
	attrs := map[string]string{
		"signer":       crypto.MustNewAddress(crypto.GasPrefix, e.Signer[:]).String(),
		"target":       "0x" + hex.EncodeToString(e.Target[:]),
		"innerSuccess": strconv.FormatBool(e.InnerSuccess),
	}
	if e.Nonce != nil {
		attrs["nonce"] = new(big.Int).Set(e.Nonce).String()
	}
	if e.Sponsor != ([20]byte{}) {
		attrs["sponsor"] = crypto.MustNewAddress(crypto.GasPrefix, e.Sponsor[:]).String()
	}
	return &types.Event{Type: TypeForwardExecuted, Attributes: attrs}
}
