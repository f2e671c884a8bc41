// Package mcp parses MCP command flags and serves the gateway tools over
// stdio.
package mcp

import (
	"context"
	"flag"
	"fmt"
	"log"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	gatewaycmd "github.com/louisbranch/tileduel/internal/cmd/gateway"
	entrypoint "github.com/louisbranch/tileduel/internal/platform/cmd"
	mcpapi "github.com/louisbranch/tileduel/internal/services/gateway/api/mcp"
	"github.com/louisbranch/tileduel/internal/services/gateway/app"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
)

// Config holds MCP command configuration.
type Config struct {
	gatewaycmd.Session
	Gas uint64 `env:"TILEDUEL_GAS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args, func(fs *flag.FlagSet, cfg *Config) {
		gatewaycmd.RegisterSessionFlags(fs, &cfg.Session)
		fs.Uint64Var(&cfg.Gas, "gas", cfg.Gas, "prepaid gas per change call")
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the persisted session and serves MCP on stdio until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return run(ctx, cfg, &sdkmcp.StdioTransport{})
}

func run(ctx context.Context, cfg Config, transport sdkmcp.Transport) error {
	sessionCfg, profile, err := cfg.Session.Build()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		manager := session.NewManager(sessionCfg, app.StoreAt(cfg.KeystorePath))
		if err := manager.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize session: %w", err)
		}
		defer func() {
			if err := manager.Close(); err != nil {
				log.Printf("close key store: %v", err)
			}
		}()
		server := mcpapi.New(manager, contract.New(manager, profile, cfg.Gas))
		return mcpapi.Serve(ctx, server, transport)
	})
}
