package state

import (
	"bytes"
	"math/big"
	"testing"

	"gasstation/storage"
)

func newManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestForwarderNonceDefaultsToZero(t *testing.T) {
	m := newManager()
	addr := bytes.Repeat([]byte{0x11}, 20)

	nonce, err := m.ForwarderNonce(addr)
	if err != nil {
		t.Fatalf("nonce for unseen signer: %v", err)
	}
	if nonce.Sign() != 0 {
		t.Fatalf("nonce = %s, want 0", nonce)
	}

	want := new(big.Int).Lsh(big.NewInt(1), 128)
	if err := m.SetForwarderNonce(addr, want); err != nil {
		t.Fatalf("set nonce: %v", err)
	}
	got, err := m.ForwarderNonce(addr)
	if err != nil || got.Cmp(want) != 0 {
		t.Fatalf("nonce round trip = %s, %v; want %s", got, err, want)
	}
}

func TestNoncesAreIndependentPerSigner(t *testing.T) {
	m := newManager()
	first := bytes.Repeat([]byte{0x11}, 20)
	second := bytes.Repeat([]byte{0x22}, 20)

	if err := m.SetForwarderNonce(first, big.NewInt(7)); err != nil {
		t.Fatalf("set nonce: %v", err)
	}
	nonce, err := m.ForwarderNonce(second)
	if err != nil || nonce.Sign() != 0 {
		t.Fatalf("second signer nonce = %s, %v; want 0", nonce, err)
	}
}

func TestTrustedSponsorToggle(t *testing.T) {
	m := newManager()
	addr := bytes.Repeat([]byte{0x55}, 20)

	trusted, err := m.TrustedSponsor(addr)
	if err != nil || trusted {
		t.Fatalf("unknown sponsor trusted = %v, %v; want false", trusted, err)
	}
	if err := m.SetTrustedSponsor(addr, true); err != nil {
		t.Fatalf("set trusted: %v", err)
	}
	trusted, err = m.TrustedSponsor(addr)
	if err != nil || !trusted {
		t.Fatalf("sponsor trusted = %v, %v; want true", trusted, err)
	}
	if err := m.SetTrustedSponsor(addr, false); err != nil {
		t.Fatalf("revoke trusted: %v", err)
	}
	trusted, err = m.TrustedSponsor(addr)
	if err != nil || trusted {
		t.Fatalf("revoked sponsor trusted = %v, %v; want false", trusted, err)
	}
}

func TestOwnerRecord(t *testing.T) {
	m := newManager()

	_, ok, err := m.Owner()
	if err != nil {
		t.Fatalf("owner on fresh state: %v", err)
	}
	if ok {
		t.Fatalf("fresh state reports an owner")
	}

	addr := bytes.Repeat([]byte{0xaa}, 20)
	if err := m.SetOwner(addr); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	got, ok, err := m.Owner()
	if err != nil || !ok || !bytes.Equal(got, addr) {
		t.Fatalf("owner = %x, %v, %v; want %x", got, ok, err, addr)
	}
}

func TestTokenBalanceNormalisesIdentifier(t *testing.T) {
	m := newManager()
	addr := bytes.Repeat([]byte{0x11}, 20)

	if err := m.SetTokenBalance(addr, "  znhb ", big.NewInt(42)); err != nil {
		t.Fatalf("set token balance: %v", err)
	}
	got, err := m.TokenBalance(addr, "ZNHB")
	if err != nil || got.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("normalised lookup = %s, %v; want 42", got, err)
	}
}

func TestEligibilitySets(t *testing.T) {
	m := newManager()
	target := bytes.Repeat([]byte{0x22}, 20)

	ok, err := m.SponsorableTarget(target)
	if err != nil || ok {
		t.Fatalf("unlisted target = %v, %v; want false", ok, err)
	}
	if err := m.SetSponsorableTarget(target, true); err != nil {
		t.Fatalf("list target: %v", err)
	}
	ok, err = m.SponsorableTarget(target)
	if err != nil || !ok {
		t.Fatalf("listed target = %v, %v; want true", ok, err)
	}

	if err := m.SetEligibleToken("znhb", true); err != nil {
		t.Fatalf("list token: %v", err)
	}
	ok, err = m.EligibleToken("ZNHB")
	if err != nil || !ok {
		t.Fatalf("listed token = %v, %v; want true", ok, err)
	}
	if err := m.SetEligibleToken("ZNHB", false); err != nil {
		t.Fatalf("delist token: %v", err)
	}
	ok, err = m.EligibleToken("znhb")
	if err != nil || ok {
		t.Fatalf("delisted token = %v, %v; want false", ok, err)
	}
}

func TestFundingModeDefaultsToUserCredit(t *testing.T) {
	m := newManager()

	mode, err := m.SponsorFundingMode()
	if err != nil || mode != FundingModeUserCredit {
		t.Fatalf("default mode = %v, %v; want user credit", mode, err)
	}
	if err := m.SetSponsorFundingMode(FundingModeOwnerPool); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	mode, err = m.SponsorFundingMode()
	if err != nil || mode != FundingModeOwnerPool {
		t.Fatalf("mode = %v, %v; want owner pool", mode, err)
	}
	if err := m.SetSponsorFundingMode(FundingMode(9)); err == nil {
		t.Fatalf("unknown mode accepted")
	}
}

func TestSetCreditBalanceRejectsNegative(t *testing.T) {
	m := newManager()
	addr := bytes.Repeat([]byte{0x11}, 20)
	if err := m.SetCreditBalance(addr, big.NewInt(-1)); err == nil {
		t.Fatalf("negative balance accepted")
	}
	if err := m.SetCreditBalance(addr, nil); err == nil {
		t.Fatalf("nil balance accepted")
	}
}
