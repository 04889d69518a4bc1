package config

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"gasstation/crypto"
)

var (
	testForwarderAddr = crypto.MustNewAddress(crypto.GasPrefix, bytes.Repeat([]byte{0xf0}, 20)).String()
	testSponsorAddr   = crypto.MustNewAddress(crypto.GasPrefix, bytes.Repeat([]byte{0x55}, 20)).String()
	testOwnerAddr     = crypto.MustNewAddress(crypto.GasPrefix, bytes.Repeat([]byte{0xaa}, 20)).String()
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func minimalConfig() string {
	return fmt.Sprintf(`ChainID = 187
ForwarderAddress = "%s"
SponsorAddress = "%s"
OwnerAddress = "%s"
`, testForwarderAddr, testSponsorAddr, testOwnerAddr)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != DefaultListenAddress {
		t.Fatalf("ListenAddress = %q, want default", cfg.ListenAddress)
	}
	if cfg.Backend != DefaultBackend {
		t.Fatalf("Backend = %q, want default", cfg.Backend)
	}
	if cfg.MarkupBps != DefaultMarkupBps {
		t.Fatalf("MarkupBps = %d, want %d", cfg.MarkupBps, DefaultMarkupBps)
	}
	if cfg.UnitPrice().Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("UnitPrice = %s, want 1", cfg.UnitPrice())
	}
}

func TestLoadParsesIdentities(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fwd, err := cfg.ForwarderIdentity()
	if err != nil || fwd.String() != testForwarderAddr {
		t.Fatalf("forwarder identity = %s, %v", fwd.String(), err)
	}
	owner, err := cfg.OwnerIdentity()
	if err != nil || owner.String() != testOwnerAddr {
		t.Fatalf("owner identity = %s, %v", owner.String(), err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing chain id": fmt.Sprintf(`ForwarderAddress = "%s"
SponsorAddress = "%s"
OwnerAddress = "%s"
`, testForwarderAddr, testSponsorAddr, testOwnerAddr),
		"unknown backend": minimalConfig() + "Backend = \"postgres\"\n",
		"bad address":     minimalConfig() + "ForwarderAddress = \"not-an-address\"\n",
		"bad unit price":  minimalConfig() + "UnitPriceWei = \"1.5\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected load to fail")
			}
		})
	}
}

func TestLoadHonoursUnitPriceOverride(t *testing.T) {
	contents := minimalConfig() + "UnitPriceWei = \"250000000\"\n"
	cfg, err := Load(writeConfig(t, contents))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UnitPrice().Cmp(big.NewInt(250_000_000)) != 0 {
		t.Fatalf("UnitPrice = %s, want 250000000", cfg.UnitPrice())
	}
}

func TestLoadCreatesDefaultFileOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := Load(path); err != nil {
		t.Fatalf("first-run load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not created: %v", err)
	}
}
