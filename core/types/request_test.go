package types

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func testDomain() Domain {
	forwarder := bytes.Repeat([]byte{0xf0}, 20)
	return Domain{Name: "gasstation", Version: "1", ChainID: big.NewInt(187), Forwarder: forwarder}
}

func signedRequest(t *testing.T) (*ForwardRequest, []byte, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	req := &ForwardRequest{
		Signer:   crypto.PubkeyToAddress(key.PublicKey).Bytes(),
		Target:   bytes.Repeat([]byte{0x22}, 20),
		Value:    big.NewInt(5),
		FeeLimit: 100_000,
		Nonce:    big.NewInt(0),
		Payload:  []byte{0xde, 0xad, 0xbe, 0xef},
	}
	sig, err := req.Sign(testDomain(), key)
	if err != nil {
		t.Fatalf("sign request: %v", err)
	}
	return req, sig, key
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	req, sig, _ := signedRequest(t)
	if !req.VerifySignature(testDomain(), sig) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifySignatureRejectsFieldTamper(t *testing.T) {
	base, sig, _ := signedRequest(t)
	domain := testDomain()

	mutations := map[string]func(r *ForwardRequest){
		"target":   func(r *ForwardRequest) { r.Target = bytes.Repeat([]byte{0x33}, 20) },
		"value":    func(r *ForwardRequest) { r.Value = big.NewInt(6) },
		"feeLimit": func(r *ForwardRequest) { r.FeeLimit = base.FeeLimit + 1 },
		"counter":  func(r *ForwardRequest) { r.Nonce = big.NewInt(1) },
		"payload":  func(r *ForwardRequest) { r.Payload = []byte{0xca, 0xfe} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tampered := *base
			mutate(&tampered)
			if tampered.VerifySignature(domain, sig) {
				t.Fatalf("signature verified after mutating %s", name)
			}
		})
	}
}

func TestVerifySignatureRejectsForeignDomain(t *testing.T) {
	req, sig, _ := signedRequest(t)

	other := testDomain()
	other.ChainID = big.NewInt(188)
	if req.VerifySignature(other, sig) {
		t.Fatalf("signature verified under a different chain id")
	}

	other = testDomain()
	other.Forwarder = bytes.Repeat([]byte{0xf1}, 20)
	if req.VerifySignature(other, sig) {
		t.Fatalf("signature verified under a different forwarder identity")
	}
}

func TestRecoverSignerRejectsMalformedSignature(t *testing.T) {
	req, sig, _ := signedRequest(t)
	domain := testDomain()

	if _, err := req.RecoverSigner(domain, sig[:64]); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("short signature: got %v, want ErrInvalidSignature", err)
	}
	if _, err := req.RecoverSigner(domain, append(append([]byte{}, sig...), 0x00)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("long signature: got %v, want ErrInvalidSignature", err)
	}

	bad := make([]byte, SignatureLength)
	copy(bad, sig)
	bad[64] = 5
	if _, err := req.RecoverSigner(domain, bad); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("bad recovery id: got %v, want ErrInvalidSignature", err)
	}
}

func TestRecoverSignerAcceptsLegacyRecoveryID(t *testing.T) {
	req, sig, _ := signedRequest(t)
	legacy := make([]byte, SignatureLength)
	copy(legacy, sig)
	legacy[64] += 27
	recovered, err := req.RecoverSigner(testDomain(), legacy)
	if err != nil {
		t.Fatalf("recover with legacy id: %v", err)
	}
	if !bytes.Equal(recovered, req.Signer) {
		t.Fatalf("recovered %x, want %x", recovered, req.Signer)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	valid := &ForwardRequest{
		Signer: bytes.Repeat([]byte{0x11}, 20),
		Target: bytes.Repeat([]byte{0x22}, 20),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	short := *valid
	short.Signer = short.Signer[:19]
	if err := short.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("short signer: got %v, want ErrInvalidRequest", err)
	}

	negative := *valid
	negative.Value = big.NewInt(-1)
	if err := negative.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("negative value: got %v, want ErrInvalidRequest", err)
	}

	var nilReq *ForwardRequest
	if err := nilReq.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("nil request: got %v, want ErrInvalidRequest", err)
	}
}

func TestDigestIsDeterministic(t *testing.T) {
	req, _, _ := signedRequest(t)
	domain := testDomain()
	first, err := req.Digest(domain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	second, err := req.Digest(domain)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("digest not deterministic: %x vs %x", first, second)
	}
}
