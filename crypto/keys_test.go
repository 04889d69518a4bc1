package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(GasPrefix)) {
		t.Fatalf("encoded address %q lacks prefix", encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: %s vs %s", decoded.String(), encoded)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "gas1", "nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq", "not-bech32"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("decoded %q without error", input)
		}
	}
}

func TestNewAddressValidatesLength(t *testing.T) {
	if _, err := NewAddress(GasPrefix, bytes.Repeat([]byte{0x01}, 19)); err == nil {
		t.Fatalf("19-byte address accepted")
	}
	if _, err := NewAddress(GasPrefix, bytes.Repeat([]byte{0x01}, 20)); err != nil {
		t.Fatalf("20-byte address rejected: %v", err)
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if !restored.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("restored key has a different address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "relay.keystore")
	if err := SaveToKeystore(path, key, "passphrase"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}

	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if !loaded.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("loaded key has a different address")
	}

	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("wrong passphrase accepted")
	}
}
