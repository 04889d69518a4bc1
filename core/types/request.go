package types

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// RequestTypeTag is the canonical type string mixed into every request digest.
// Changing any field of ForwardRequest requires changing this tag.
const RequestTypeTag = "ForwardRequest(address signer,address target,uint256 value,uint256 feeLimit,uint256 counter,bytes payload)"

// SignatureLength is the size of an (r, s, v) recoverable signature.
const SignatureLength = 65

var (
	// ErrInvalidSignature covers malformed signature bytes: wrong length or
	// an out-of-range recovery identifier.
	ErrInvalidSignature = errors.New("types: invalid signature encoding")
	// ErrInvalidRequest is returned when a request fails basic field checks.
	ErrInvalidRequest = errors.New("types: invalid forward request")
)

// Domain binds request digests to one deployment. Two domains that differ in
// any field produce disjoint digest spaces, so a signature produced for one
// deployment or chain can never validate against another.
type Domain struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	ChainID   *big.Int `json:"chainId"`
	Forwarder []byte   `json:"forwarder"`
}

// Separator derives the 32-byte domain separator.
func (d Domain) Separator() [32]byte {
	var chainWord [32]byte
	if d.ChainID != nil {
		d.ChainID.FillBytes(chainWord[:])
	}
	var fwdWord [32]byte
	copy(fwdWord[32-len(d.Forwarder):], d.Forwarder)
	sum := crypto.Keccak256(
		crypto.Keccak256([]byte("GasStationDomain(string name,string version,uint256 chainId,address forwarder)")),
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		chainWord[:],
		fwdWord[:],
	)
	var out [32]byte
	copy(out[:], sum)
	return out
}

// ForwardRequest is the off-chain-authorised action a relaying party submits
// on the signer's behalf. It is immutable once signed; the digest commits to
// every field plus the deployment domain.
type ForwardRequest struct {
	Signer   []byte   `json:"signer"`
	Target   []byte   `json:"target"`
	Value    *big.Int `json:"value"`
	FeeLimit uint64   `json:"feeLimit"`
	Nonce    *big.Int `json:"nonce"`
	Payload  []byte   `json:"payload"`
}

// Validate performs structural checks on the request fields.
func (r *ForwardRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if len(r.Signer) != 20 {
		return fmt.Errorf("%w: signer must be 20 bytes", ErrInvalidRequest)
	}
	if len(r.Target) != 20 {
		return fmt.Errorf("%w: target must be 20 bytes", ErrInvalidRequest)
	}
	if r.Value != nil && r.Value.Sign() < 0 {
		return fmt.Errorf("%w: negative value", ErrInvalidRequest)
	}
	if r.Nonce != nil && r.Nonce.Sign() < 0 {
		return fmt.Errorf("%w: negative counter", ErrInvalidRequest)
	}
	return nil
}

// NonceValue returns the request counter, treating nil as zero.
func (r *ForwardRequest) NonceValue() *big.Int {
	if r == nil || r.Nonce == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(r.Nonce)
}

func (r *ForwardRequest) structHash() []byte {
	var signerWord, targetWord, valueWord, feeWord, nonceWord [32]byte
	copy(signerWord[32-len(r.Signer):], r.Signer)
	copy(targetWord[32-len(r.Target):], r.Target)
	if r.Value != nil {
		r.Value.FillBytes(valueWord[:])
	}
	new(big.Int).SetUint64(r.FeeLimit).FillBytes(feeWord[:])
	if r.Nonce != nil {
		r.Nonce.FillBytes(nonceWord[:])
	}
	return crypto.Keccak256(
		crypto.Keccak256([]byte(RequestTypeTag)),
		signerWord[:],
		targetWord[:],
		valueWord[:],
		feeWord[:],
		nonceWord[:],
		crypto.Keccak256(r.Payload),
	)
}

// Digest computes the domain-bound signing digest for the request.
func (r *ForwardRequest) Digest(domain Domain) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sep := domain.Separator()
	return crypto.Keccak256([]byte{0x19, 0x01}, sep[:], r.structHash()), nil
}

// Sign produces the 65-byte (r, s, v) signature over the domain-bound digest.
func (r *ForwardRequest) Sign(domain Domain, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := r.Digest(domain)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(digest, key)
}

// RecoverSigner recovers the signing address from the signature. Malformed
// signatures are reported as ErrInvalidSignature, never a panic.
func (r *ForwardRequest) RecoverSigner(domain Domain, sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	// Accept both the raw {0,1} recovery id and the legacy {27,28} form.
	if normalized[64] == 27 || normalized[64] == 28 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return nil, fmt.Errorf("%w: recovery id out of range", ErrInvalidSignature)
	}
	digest, err := r.Digest(domain)
	if err != nil {
		return nil, err
	}
	pubKey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey).Bytes(), nil
}

// VerifySignature reports whether the signature was produced by the claimed
// signer over this exact request and domain.
func (r *ForwardRequest) VerifySignature(domain Domain, sig []byte) bool {
	recovered, err := r.RecoverSigner(domain, sig)
	if err != nil {
		return false
	}
	return bytes.Equal(recovered, r.Signer)
}
