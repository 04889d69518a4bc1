package state

import (
	"fmt"
	"math/big"
)

// FundingMode selects which balance the sponsorship affordability gate reads.
type FundingMode uint8

const (
	// FundingModeUserCredit debits each sponsored fee from the signer's own
	// pre-deposited credit.
	FundingModeUserCredit FundingMode = iota
	// FundingModeOwnerPool pays every sponsored fee from the
	// administrator-funded pool.
	FundingModeOwnerPool
)

// CreditBalance returns the user's native-unit credit balance, zero when the
// ledger entry does not exist yet.
func (m *Manager) CreditBalance(user []byte) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	stored := new(big.Int)
	ok, err := m.KVGet(addressKey(sponsorCreditPrefix, user), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetCreditBalance persists the user's credit balance.
func (m *Manager) SetCreditBalance(user []byte, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit balance must be non-negative")
	}
	return m.KVPut(addressKey(sponsorCreditPrefix, user), amount)
}

// TokenBalance returns the user's deposited balance for the given token.
func (m *Manager) TokenBalance(user []byte, tokenID string) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	stored := new(big.Int)
	ok, err := m.KVGet(tokenKey(sponsorTokenPrefix, user, tokenID), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetTokenBalance persists the user's deposited balance for the given token.
func (m *Manager) SetTokenBalance(user []byte, tokenID string, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token balance must be non-negative")
	}
	return m.KVPut(tokenKey(sponsorTokenPrefix, user, tokenID), amount)
}

// SponsorableTarget reports whether the target is in the eligibility set.
func (m *Manager) SponsorableTarget(target []byte) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("state manager not initialised")
	}
	return m.KVHas(addressKey(sponsorTargetPrefix, target))
}

// SetSponsorableTarget adds or removes a target from the eligibility set.
func (m *Manager) SetSponsorableTarget(target []byte, enabled bool) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	key := addressKey(sponsorTargetPrefix, target)
	if !enabled {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// EligibleToken reports whether the token identifier is accepted for deposits.
func (m *Manager) EligibleToken(tokenID string) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("state manager not initialised")
	}
	return m.KVHas(tokenIDKey(sponsorEligiblePrefix, tokenID))
}

// SetEligibleToken adds or removes a token identifier from the eligibility
// set.
func (m *Manager) SetEligibleToken(tokenID string, enabled bool) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	key := tokenIDKey(sponsorEligiblePrefix, tokenID)
	if !enabled {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// PoolBalance returns the sponsor's actual held native funds. The credit
// ledger is an allocation of this pool; the sum of all credit balances never
// exceeds it.
func (m *Manager) PoolBalance() (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	stored := new(big.Int)
	ok, err := m.KVGet(sponsorPoolKey, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetPoolBalance persists the sponsor's held native funds.
func (m *Manager) SetPoolBalance(amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("pool balance must be non-negative")
	}
	return m.KVPut(sponsorPoolKey, amount)
}

// TokenHeld returns the total amount of the token currently held by the
// sponsor across all depositors.
func (m *Manager) TokenHeld(tokenID string) (*big.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("state manager not initialised")
	}
	stored := new(big.Int)
	ok, err := m.KVGet(tokenIDKey(sponsorTokenHeldPrefix, tokenID), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return stored, nil
}

// SetTokenHeld persists the sponsor's total held balance for the token.
func (m *Manager) SetTokenHeld(tokenID string, amount *big.Int) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("held token balance must be non-negative")
	}
	return m.KVPut(tokenIDKey(sponsorTokenHeldPrefix, tokenID), amount)
}

// SponsorFundingMode returns the active funding mode, defaulting to per-user
// credit.
func (m *Manager) SponsorFundingMode() (FundingMode, error) {
	if m == nil {
		return FundingModeUserCredit, fmt.Errorf("state manager not initialised")
	}
	var stored uint8
	ok, err := m.KVGet(sponsorModeKey, &stored)
	if err != nil || !ok {
		return FundingModeUserCredit, err
	}
	return FundingMode(stored), nil
}

// SetSponsorFundingMode persists the active funding mode.
func (m *Manager) SetSponsorFundingMode(mode FundingMode) error {
	if m == nil {
		return fmt.Errorf("state manager not initialised")
	}
	if mode != FundingModeUserCredit && mode != FundingModeOwnerPool {
		return fmt.Errorf("unknown funding mode %d", mode)
	}
	return m.KVPut(sponsorModeKey, uint8(mode))
}
