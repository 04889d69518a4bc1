package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"gasstation/config"
	"gasstation/core/state"
	"gasstation/core/types"
	"gasstation/crypto"
	"gasstation/native/forwarder"
	"gasstation/native/sponsorship"
	"gasstation/observability/logging"
	"gasstation/rpc"
	"gasstation/storage"
)

const keystorePassEnv = "GASSTATION_KEYSTORE_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GASSTATION_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("gasstationd", env, cfg.LogFile)

	db, err := openDatabase(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)

	owner, err := cfg.OwnerIdentity()
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}
	if err := seedOwner(manager, owner, logger); err != nil {
		logger.Error("Failed to record owner", slog.Any("error", err))
		os.Exit(1)
	}

	if err := ensureRelayKey(cfg, logger); err != nil {
		logger.Error("Failed to prepare relay key", slog.Any("error", err))
		os.Exit(1)
	}

	forwarderAddr, err := cfg.ForwarderIdentity()
	if err != nil {
		logger.Error("Invalid forwarder address", slog.Any("error", err))
		os.Exit(1)
	}
	domain := types.Domain{
		Name:      cfg.ProtocolName,
		Version:   cfg.ProtocolVersion,
		ChainID:   new(big.Int).SetUint64(cfg.ChainID),
		Forwarder: forwarderAddr.Bytes(),
	}

	fwd := forwarder.NewEngine(domain, manager, loopbackInvoker(logger))

	sponsorAddr, err := cfg.SponsorIdentity()
	if err != nil {
		logger.Error("Invalid sponsor address", slog.Any("error", err))
		os.Exit(1)
	}
	// The sponsor must be in the trust registry before it can forward. This is
	// deployment wiring, not an admin action, so it writes state directly.
	if err := manager.SetTrustedSponsor(sponsorAddr.Bytes(), true); err != nil {
		logger.Error("Failed to register sponsor", slog.Any("error", err))
		os.Exit(1)
	}

	sponsor, err := sponsorship.NewEngine(manager, fwd, sponsorship.NewLedgerBackend(), cfg.UnitPrice, cfg.MarkupBps, sponsorAddr.Bytes())
	if err != nil {
		logger.Error("Failed to build sponsor engine", slog.Any("error", err))
		os.Exit(1)
	}

	server := rpc.NewServer(rpc.Config{
		Forwarder:     fwd,
		Sponsor:       sponsor,
		State:         manager,
		Logger:        logger,
		AdminSecret:   cfg.AdminJWTSecret,
		RatePerMinute: cfg.RatePerMinute,
	})

	logger.Info("gasstationd ready",
		"chainId", cfg.ChainID,
		"forwarder", forwarderAddr.String(),
		"sponsor", sponsorAddr.String(),
		"backend", cfg.Backend,
	)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "bolt":
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "gasstation.db"))
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return storage.NewLevelDB(cfg.DataDir)
	}
}

// seedOwner records the configured administrator on first start. Once recorded
// the owner is immutable; a changed config value is reported, not applied.
func seedOwner(manager *state.Manager, owner crypto.Address, logger *slog.Logger) error {
	recorded, ok, err := manager.Owner()
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("recording administrator", "owner", owner.String())
		return manager.SetOwner(owner.Bytes())
	}
	current, err := crypto.NewAddress(crypto.GasPrefix, recorded)
	if err != nil {
		return err
	}
	if !current.Equal(owner) {
		logger.Warn("configured owner differs from recorded owner; keeping recorded owner",
			"recorded", current.String(), "configured", owner.String())
	}
	return nil
}

// ensureRelayKey generates and stores the daemon's relay key on first run when
// a keystore path is configured.
func ensureRelayKey(cfg *config.Config, logger *slog.Logger) error {
	path := strings.TrimSpace(cfg.KeystorePath)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	passphrase := os.Getenv(keystorePassEnv)
	if passphrase == "" {
		return fmt.Errorf("%s must be set to create the relay keystore", keystorePassEnv)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, passphrase); err != nil {
		return err
	}
	logger.Info("generated relay key", "keystore", path, "address", key.PubKey().Address().String())
	return nil
}

// loopbackInvoker is the call backend used when no execution environment is
// attached: every inner call lands here, is logged, and reports success with
// empty return data. Deployments with a real environment swap this out.
func loopbackInvoker(logger *slog.Logger) forwarder.Invoker {
	return forwarder.InvokerFunc(func(call forwarder.Call) forwarder.CallResult {
		logger.Debug("inner call",
			"caller", fmt.Sprintf("%x", call.Caller),
			"target", fmt.Sprintf("%x", call.Target),
			"value", call.Value.String(),
			"payloadBytes", len(call.Payload),
		)
		return forwarder.CallResult{Success: true}
	})
}
