package forwarder

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"gasstation/core/events"
	"gasstation/core/state"
	"gasstation/core/types"
	"gasstation/native/admin"
	"gasstation/storage"
)

func newTestDomain() types.Domain {
	return types.Domain{
		Name:      "gasstation",
		Version:   "1",
		ChainID:   big.NewInt(187),
		Forwarder: bytes.Repeat([]byte{0xf0}, 20),
	}
}

type fixture struct {
	engine  *Engine
	manager *state.Manager
	emitter *events.MemoryEmitter
	calls   []Call
	key     *ecdsa.PrivateKey
	signer  []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{manager: state.NewManager(storage.NewMemDB())}
	invoker := InvokerFunc(func(call Call) CallResult {
		f.calls = append(f.calls, call)
		return CallResult{Success: true, Data: []byte("ok")}
	})
	f.engine = NewEngine(newTestDomain(), f.manager, invoker)
	f.emitter = &events.MemoryEmitter{}
	f.engine.SetEmitter(f.emitter)

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f.key = key
	f.signer = ethcrypto.PubkeyToAddress(key.PublicKey).Bytes()
	return f
}

func (f *fixture) signedRequest(t *testing.T, nonce int64) (*types.ForwardRequest, []byte) {
	t.Helper()
	req := &types.ForwardRequest{
		Signer:   f.signer,
		Target:   bytes.Repeat([]byte{0x22}, 20),
		Value:    big.NewInt(0),
		FeeLimit: 50_000,
		Nonce:    big.NewInt(nonce),
		Payload:  []byte{0x01, 0x02},
	}
	sig, err := req.Sign(f.engine.Domain(), f.key)
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}
	return req, sig
}

func (f *fixture) mustNonce(t *testing.T) *big.Int {
	t.Helper()
	nonce, err := f.engine.CurrentNonce(f.signer)
	if err != nil {
		t.Fatalf("current nonce: %v", err)
	}
	return nonce
}

func TestExecuteAdvancesCounterByExactlyOne(t *testing.T) {
	f := newFixture(t)
	req, sig := f.signedRequest(t, 0)

	result, err := f.engine.Execute(req, sig)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected inner success")
	}
	if got := f.mustNonce(t); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("counter after execute = %s, want 1", got)
	}
	if len(f.calls) != 1 {
		t.Fatalf("invoker called %d times, want 1", len(f.calls))
	}
	if !bytes.Equal(f.calls[0].Caller, f.signer) {
		t.Fatalf("inner call caller = %x, want signer %x", f.calls[0].Caller, f.signer)
	}
}

func TestExecuteRejectsReplay(t *testing.T) {
	f := newFixture(t)
	req, sig := f.signedRequest(t, 0)

	if _, err := f.engine.Execute(req, sig); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if _, err := f.engine.Execute(req, sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("replay: got %v, want ErrSignatureMismatch", err)
	}
	if got := f.mustNonce(t); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("counter after rejected replay = %s, want 1", got)
	}
	if len(f.calls) != 1 {
		t.Fatalf("invoker called %d times, want 1", len(f.calls))
	}
}

func TestExecuteRejectsOutOfOrderCounter(t *testing.T) {
	f := newFixture(t)
	ahead, aheadSig := f.signedRequest(t, 1)

	if _, err := f.engine.Execute(ahead, aheadSig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("counter ahead: got %v, want ErrSignatureMismatch", err)
	}

	current, currentSig := f.signedRequest(t, 0)
	if _, err := f.engine.Execute(current, currentSig); err != nil {
		t.Fatalf("execute at current counter: %v", err)
	}
	// The previously-rejected request is now at the stored counter and becomes
	// valid; nothing about rejection consumed it.
	if _, err := f.engine.Execute(ahead, aheadSig); err != nil {
		t.Fatalf("execute formerly-ahead request: %v", err)
	}
	if got := f.mustNonce(t); got.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("counter = %s, want 2", got)
	}
}

func TestExecuteReportsInnerFailureAsData(t *testing.T) {
	f := newFixture(t)
	f.engine.invoker = InvokerFunc(func(call Call) CallResult {
		return CallResult{Success: false, Data: []byte("revert reason")}
	})
	req, sig := f.signedRequest(t, 0)

	result, err := f.engine.Execute(req, sig)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success {
		t.Fatalf("expected inner failure to be reported")
	}
	if !bytes.Equal(result.Data, []byte("revert reason")) {
		t.Fatalf("result data = %q", result.Data)
	}
	// The counter advances on inner failure too.
	if got := f.mustNonce(t); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("counter = %s, want 1", got)
	}

	evts := f.emitter.Events()
	if len(evts) != 1 || evts[0].Type != events.TypeForwardExecuted {
		t.Fatalf("expected a single %s event, got %v", events.TypeForwardExecuted, evts)
	}
	if got := evts[0].Attribute("innerSuccess"); got != "false" {
		t.Fatalf("event innerSuccess = %q, want false", got)
	}
}

func TestVerifyRejectsTamperAndWrongSigner(t *testing.T) {
	f := newFixture(t)
	req, sig := f.signedRequest(t, 0)

	if err := f.engine.Verify(req, sig); err != nil {
		t.Fatalf("verify valid request: %v", err)
	}

	tampered := *req
	tampered.FeeLimit++
	if err := f.engine.Verify(&tampered, sig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("tampered request: got %v, want ErrSignatureMismatch", err)
	}

	otherKey, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forged := *req
	forgedSig, err := forged.Sign(f.engine.Domain(), otherKey)
	if err != nil {
		t.Fatalf("sign with other key: %v", err)
	}
	if err := f.engine.Verify(&forged, forgedSig); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("foreign signature: got %v, want ErrSignatureMismatch", err)
	}
}

func TestExecuteAsSponsorRequiresTrust(t *testing.T) {
	f := newFixture(t)
	sponsor := bytes.Repeat([]byte{0x55}, 20)
	req, sig := f.signedRequest(t, 0)

	if _, err := f.engine.ExecuteAsSponsor(req, sig, sponsor); !errors.Is(err, ErrUntrustedSponsor) {
		t.Fatalf("untrusted sponsor: got %v, want ErrUntrustedSponsor", err)
	}
	if got := f.mustNonce(t); got.Sign() != 0 {
		t.Fatalf("counter advanced on trust rejection")
	}

	if err := f.manager.SetTrustedSponsor(sponsor, true); err != nil {
		t.Fatalf("register sponsor: %v", err)
	}
	result, err := f.engine.ExecuteAsSponsor(req, sig, sponsor)
	if err != nil {
		t.Fatalf("execute as trusted sponsor: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected inner success")
	}
}

func TestTrustRegistryAdminControls(t *testing.T) {
	f := newFixture(t)
	owner := bytes.Repeat([]byte{0xaa}, 20)
	if err := f.manager.SetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	if _, err := admin.Authorize(f.manager, bytes.Repeat([]byte{0xbb}, 20)); !errors.Is(err, admin.ErrUnauthorized) {
		t.Fatalf("non-owner authorize: got %v, want ErrUnauthorized", err)
	}

	c, err := admin.Authorize(f.manager, owner)
	if err != nil {
		t.Fatalf("owner authorize: %v", err)
	}
	sponsor := bytes.Repeat([]byte{0x55}, 20)
	if err := f.engine.AddTrustedSponsor(c, sponsor); err != nil {
		t.Fatalf("add trusted sponsor: %v", err)
	}
	trusted, err := f.engine.IsTrustedSponsor(sponsor)
	if err != nil || !trusted {
		t.Fatalf("IsTrustedSponsor = %v, %v; want true", trusted, err)
	}
	if err := f.engine.RemoveTrustedSponsor(c, sponsor); err != nil {
		t.Fatalf("remove trusted sponsor: %v", err)
	}
	trusted, err = f.engine.IsTrustedSponsor(sponsor)
	if err != nil || trusted {
		t.Fatalf("IsTrustedSponsor after removal = %v, %v; want false", trusted, err)
	}
}

func TestTrustRegistryRejectsForgedCapability(t *testing.T) {
	f := newFixture(t)
	owner := bytes.Repeat([]byte{0xaa}, 20)
	if err := f.manager.SetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	sponsor := bytes.Repeat([]byte{0x55}, 20)

	var forged admin.Capability
	if err := f.engine.AddTrustedSponsor(forged, sponsor); !errors.Is(err, admin.ErrUnauthorized) {
		t.Fatalf("add with forged capability: got %v, want ErrUnauthorized", err)
	}
	trusted, err := f.engine.IsTrustedSponsor(sponsor)
	if err != nil || trusted {
		t.Fatalf("forged add mutated the registry")
	}

	c, err := admin.Authorize(f.manager, owner)
	if err != nil {
		t.Fatalf("authorize owner: %v", err)
	}
	if err := f.engine.AddTrustedSponsor(c, sponsor); err != nil {
		t.Fatalf("add trusted sponsor: %v", err)
	}
	if err := f.engine.RemoveTrustedSponsor(forged, sponsor); !errors.Is(err, admin.ErrUnauthorized) {
		t.Fatalf("remove with forged capability: got %v, want ErrUnauthorized", err)
	}
	trusted, err = f.engine.IsTrustedSponsor(sponsor)
	if err != nil || !trusted {
		t.Fatalf("forged remove mutated the registry")
	}
}
