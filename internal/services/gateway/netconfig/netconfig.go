// Package netconfig resolves named deployment environments into the ledger
// endpoints and contract identifier the gateway talks to.
package netconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/tileduel/internal/platform/config"
)

// DefaultContractName is the contract account used when none is configured.
const DefaultContractName = "pazzle.testnet"

// Config describes one network environment.
type Config struct {
	NetworkID    string
	NodeURL      string
	WalletURL    string
	HelperURL    string
	ContractName string
	// KeyPath is the local key file the ci environment signs with.
	KeyPath string
}

// Overrides are environment variables that replace resolved values.
type Overrides struct {
	NodeURL      string `env:"NODE_URL"`
	WalletURL    string `env:"WALLET_URL"`
	ContractName string `env:"CONTRACT_NAME"`
}

// Resolve returns the configuration for a named environment.
//
// Accepted names: production/mainnet, development/testnet, betanet, local,
// test/ci. An empty name resolves to development.
func Resolve(env, contractName string) (Config, error) {
	if strings.TrimSpace(contractName) == "" {
		contractName = DefaultContractName
	}
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "mainnet":
		return Config{
			NetworkID:    "mainnet",
			NodeURL:      "https://rpc.mainnet.near.org",
			WalletURL:    "https://wallet.near.org",
			HelperURL:    "https://helper.mainnet.near.org",
			ContractName: contractName,
		}, nil
	case "", "development", "testnet":
		return Config{
			NetworkID:    "testnet",
			NodeURL:      "https://rpc.testnet.near.org",
			WalletURL:    "https://wallet.testnet.near.org",
			HelperURL:    "https://helper.testnet.near.org",
			ContractName: contractName,
		}, nil
	case "betanet":
		return Config{
			NetworkID:    "betanet",
			NodeURL:      "https://rpc.betanet.near.org",
			WalletURL:    "https://wallet.betanet.near.org",
			HelperURL:    "https://helper.betanet.near.org",
			ContractName: contractName,
		}, nil
	case "local":
		home, _ := os.UserHomeDir()
		return Config{
			NetworkID:    "local",
			NodeURL:      "http://localhost:3030",
			WalletURL:    "http://localhost:4000/wallet",
			KeyPath:      filepath.Join(home, ".near", "validator_key.json"),
			ContractName: contractName,
		}, nil
	case "test", "ci":
		return Config{
			NetworkID:    "shared-test",
			NodeURL:      "https://rpc.ci-testnet.near.org",
			KeyPath:      "/root/.near/validator_key.json",
			ContractName: contractName,
		}, nil
	default:
		return Config{}, fmt.Errorf("unknown network environment %q", env)
	}
}

// Load resolves env and applies TILEDUEL_-prefixed overrides.
func Load(env, contractName string) (Config, error) {
	cfg, err := Resolve(env, contractName)
	if err != nil {
		return Config{}, err
	}
	var overrides Overrides
	if err := config.ParseEnvPrefixed(&overrides, config.EnvPrefix); err != nil {
		return Config{}, fmt.Errorf("parse network overrides: %w", err)
	}
	return cfg.Apply(overrides), nil
}

// Apply replaces resolved values with non-empty overrides.
func (c Config) Apply(o Overrides) Config {
	if v := strings.TrimSpace(o.NodeURL); v != "" {
		c.NodeURL = v
	}
	if v := strings.TrimSpace(o.WalletURL); v != "" {
		c.WalletURL = v
	}
	if v := strings.TrimSpace(o.ContractName); v != "" {
		c.ContractName = v
	}
	return c
}
