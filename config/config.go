// Package config loads the gasstationd daemon configuration from TOML.
package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"gasstation/crypto"
)

// Defaults applied when the file omits a field or does not exist yet.
const (
	DefaultListenAddress = "127.0.0.1:8661"
	DefaultDataDir       = "./gasstation-data"
	DefaultBackend       = "leveldb"
	DefaultProtocolName  = "gasstation"
	DefaultProtocolVer   = "1"
	DefaultMarkupBps     = 12_000
	DefaultRatePerMinute = 60
)

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// Backend selects the persistent store: "leveldb", "bolt", or "memory".
	Backend string `toml:"Backend"`

	// Signing domain. ChainID and ForwarderAddress are fixed per deployment;
	// changing either invalidates every previously produced signature.
	ProtocolName     string `toml:"ProtocolName"`
	ProtocolVersion  string `toml:"ProtocolVersion"`
	ChainID          uint64 `toml:"ChainID"`
	ForwarderAddress string `toml:"ForwarderAddress"`

	// Sponsorship accounting.
	SponsorAddress string `toml:"SponsorAddress"`
	OwnerAddress   string `toml:"OwnerAddress"`
	MarkupBps      uint64 `toml:"MarkupBps"`
	UnitPriceWei   string `toml:"UnitPriceWei"`

	// RPC hardening.
	AdminJWTSecret string `toml:"AdminJWTSecret"`
	RatePerMinute  int    `toml:"RatePerMinute"`

	// Logging.
	LogFile string `toml:"LogFile"`

	// Keystore holding the daemon's relay key.
	KeystorePath string `toml:"KeystorePath"`
}

// Load reads the configuration at path, creating a default file on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = DefaultBackend
	}
	if strings.TrimSpace(c.ProtocolName) == "" {
		c.ProtocolName = DefaultProtocolName
	}
	if strings.TrimSpace(c.ProtocolVersion) == "" {
		c.ProtocolVersion = DefaultProtocolVer
	}
	if c.MarkupBps == 0 {
		c.MarkupBps = DefaultMarkupBps
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = DefaultRatePerMinute
	}
	if strings.TrimSpace(c.UnitPriceWei) == "" {
		c.UnitPriceWei = "1"
	}
}

// Validate rejects configurations that cannot produce a working daemon.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("config: ChainID must be set")
	}
	if _, err := c.forwarder(); err != nil {
		return err
	}
	if _, err := c.sponsor(); err != nil {
		return err
	}
	if _, err := c.owner(); err != nil {
		return err
	}
	if _, ok := new(big.Int).SetString(strings.TrimSpace(c.UnitPriceWei), 10); !ok {
		return fmt.Errorf("config: UnitPriceWei %q is not a base-10 integer", c.UnitPriceWei)
	}
	return nil
}

func (c *Config) forwarder() (crypto.Address, error) {
	return parseAddress("ForwarderAddress", c.ForwarderAddress)
}

func (c *Config) sponsor() (crypto.Address, error) {
	return parseAddress("SponsorAddress", c.SponsorAddress)
}

func (c *Config) owner() (crypto.Address, error) {
	return parseAddress("OwnerAddress", c.OwnerAddress)
}

func parseAddress(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("config: %s must be set", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: invalid %s: %w", field, err)
	}
	return addr, nil
}

// ForwarderIdentity returns the parsed forwarder address.
func (c *Config) ForwarderIdentity() (crypto.Address, error) { return c.forwarder() }

// SponsorIdentity returns the parsed sponsor address.
func (c *Config) SponsorIdentity() (crypto.Address, error) { return c.sponsor() }

// OwnerIdentity returns the parsed administrator address.
func (c *Config) OwnerIdentity() (crypto.Address, error) { return c.owner() }

// UnitPrice returns the configured environment unit price.
func (c *Config) UnitPrice() *big.Int {
	price, ok := new(big.Int).SetString(strings.TrimSpace(c.UnitPriceWei), 10)
	if !ok {
		return big.NewInt(0)
	}
	return price
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.ChainID = 1
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	// The generated file still needs the deployment identities filled in;
	// Validate would reject it, so hand it back raw for the operator to edit.
	return cfg, nil
}
