// Package admin implements the single-administrator capability used to gate
// privileged operations. Authorization is explicit: a caller proves it is the
// recorded owner once, receives a Capability value, and passes that value to
// each privileged operation.
package admin

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned for any administrator action attempted by a
// caller that is not the recorded owner.
var ErrUnauthorized = errors.New("admin: unauthorized administrator action")

// State is the read access Authorize needs.
type State interface {
	Owner() ([]byte, bool, error)
}

// Capability proves the holder passed the owner check. Only Authorize can
// produce a usable value; the zero value fails Verify.
type Capability struct {
	holder [20]byte
	minted bool
}

// Holder returns the authorized administrator address.
func (c Capability) Holder() []byte {
	out := make([]byte, len(c.holder))
	copy(out, c.holder[:])
	return out
}

// Verify checks that the capability was minted by Authorize and that its
// holder is still the recorded owner. Engines call this on every privileged
// operation, so a forged or stale capability is rejected at the component
// boundary, not just at the transport edge.
func (c Capability) Verify(st State) error {
	if !c.minted {
		return ErrUnauthorized
	}
	if st == nil {
		return fmt.Errorf("admin: nil state")
	}
	owner, ok, err := st.Owner()
	if err != nil {
		return err
	}
	if !ok || !bytes.Equal(owner, c.holder[:]) {
		return ErrUnauthorized
	}
	return nil
}

// Authorize compares the caller against the recorded owner and mints a
// Capability on success.
func Authorize(st State, caller []byte) (Capability, error) {
	if st == nil {
		return Capability{}, fmt.Errorf("admin: nil state")
	}
	if len(caller) != 20 {
		return Capability{}, fmt.Errorf("%w: caller address must be 20 bytes", ErrUnauthorized)
	}
	owner, ok, err := st.Owner()
	if err != nil {
		return Capability{}, err
	}
	if !ok || !bytes.Equal(owner, caller) {
		return Capability{}, ErrUnauthorized
	}
	c := Capability{minted: true}
	copy(c.holder[:], caller)
	return c, nil
}
