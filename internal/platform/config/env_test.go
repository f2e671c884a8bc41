package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"TILEDUEL_TEST_PORT" envDefault:"123"`
}

type prefixedTestConfig struct {
	Network string `env:"NETWORK" envDefault:"testnet"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("TILEDUEL_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvPrefixed(t *testing.T) {
	t.Setenv("TILEDUEL_NETWORK", "mainnet")

	var cfg prefixedTestConfig
	if err := ParseEnvPrefixed(&cfg, EnvPrefix); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Network != "mainnet" {
		t.Fatalf("network = %q, want mainnet", cfg.Network)
	}
}

func TestParseEnvPrefixedDefault(t *testing.T) {
	var cfg prefixedTestConfig
	if err := ParseEnvPrefixed(&cfg, "TILEDUEL_UNSET_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Fatalf("network = %q, want testnet", cfg.Network)
	}
}
