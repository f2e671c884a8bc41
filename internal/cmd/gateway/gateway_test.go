package gateway

import (
	"flag"
	"testing"

	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" || cfg.GRPCPort != 8090 {
		t.Fatalf("unexpected listen defaults: %+v", cfg)
	}
	if cfg.Network != "development" || cfg.Profile != "matched" || cfg.AppKeyPrefix != "tileduel" {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Gas != 0 {
		t.Fatalf("expected zero gas, got %d", cfg.Gas)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TILEDUEL_HTTP_ADDR", "127.0.0.1:7000")
	t.Setenv("TILEDUEL_PROFILE", "solo")
	t.Setenv("TILEDUEL_GAS", "5")

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-http-addr", "127.0.0.1:7001", "-contract", "other.testnet"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:7001" {
		t.Fatalf("expected flag addr, got %q", cfg.HTTPAddr)
	}
	if cfg.Profile != "solo" || cfg.Gas != 5 || cfg.Contract != "other.testnet" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestSessionBuild(t *testing.T) {
	t.Setenv("TILEDUEL_NODE_URL", "http://127.0.0.1:3030")
	s := Session{Network: "testnet", Profile: "solo", Contract: "game.testnet", BaseURL: "http://localhost/"}

	cfg, profile, err := s.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if profile != contract.ProfileSolo {
		t.Fatalf("profile = %v", profile)
	}
	if cfg.Network.NodeURL != "http://127.0.0.1:3030" || cfg.Network.ContractName != "game.testnet" || cfg.Network.NetworkID != "testnet" {
		t.Fatalf("network = %+v", cfg.Network)
	}
	if len(cfg.StateKey) == 0 {
		t.Fatal("expected a generated state key")
	}
}

func TestSessionBuildRejectsUnknownValues(t *testing.T) {
	if _, _, err := (Session{Network: "moonnet"}).Build(); err == nil {
		t.Fatal("expected unknown network error")
	}
	if _, _, err := (Session{Profile: "triple"}).Build(); err == nil {
		t.Fatal("expected unknown profile error")
	}
}
