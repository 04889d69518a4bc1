package state

import (
	"fmt"
	"math/big"
)

// ForwarderNonce returns the current replay counter for the signer. Counters
// are created lazily and default to zero.
func (m *Manager) ForwarderNonce(signer []byte) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	stored := new(big.Int)
	ok, err := m.KVGet(addressKey(forwarderNoncePrefix, signer), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetForwarderNonce persists the replay counter for the signer.
func (m *Manager) SetForwarderNonce(signer []byte, nonce *big.Int) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if nonce == nil || nonce.Sign() < 0 {
		return fmt.Errorf("forwarder nonce must be non-negative")
	}
	return m.KVPut(addressKey(forwarderNoncePrefix, signer), nonce)
}

// TrustedSponsor reports whether the address is registered in the trust
// registry.
func (m *Manager) TrustedSponsor(addr []byte) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("state manager not initialised")
	}
	return m.KVHas(addressKey(forwarderTrustPrefix, addr))
}

// SetTrustedSponsor adds or removes a sponsor identity from the trust
// registry.
func (m *Manager) SetTrustedSponsor(addr []byte, trusted bool) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	key := addressKey(forwarderTrustPrefix, addr)
	if !trusted {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// Owner returns the recorded administrator address, if any.
func (m *Manager) Owner() ([]byte, bool, error) {
	if m == nil {
		return nil, false, fmt.Errorf("state manager not initialised")
	}
	var stored []byte
	ok, err := m.KVGet(ownerKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored, true, nil
}

// SetOwner records the administrator address.
func (m *Manager) SetOwner(addr []byte) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if len(addr) != 20 {
		return fmt.Errorf("owner address must be 20 bytes")
	}
	return m.KVPut(ownerKey, addr)
}
