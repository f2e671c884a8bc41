// Package gateway parses gateway command flags and starts the wallet
// gateway server.
package gateway

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/tileduel/internal/platform/cmd"
	"github.com/louisbranch/tileduel/internal/services/gateway/app"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/netconfig"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
	"github.com/louisbranch/tileduel/internal/services/gateway/wallet"
)

// Session holds the settings every front end needs to open the wallet
// session. The node, wallet and contract overrides are read by netconfig.
type Session struct {
	Network         string `env:"TILEDUEL_NETWORK"           envDefault:"development"`
	Profile         string `env:"TILEDUEL_PROFILE"           envDefault:"matched"`
	KeystorePath    string `env:"TILEDUEL_KEYSTORE_PATH"     envDefault:"tileduel-keys.db"`
	AppKeyPrefix    string `env:"TILEDUEL_APP_KEY_PREFIX"    envDefault:"tileduel"`
	BaseURL         string `env:"TILEDUEL_BASE_URL"          envDefault:"http://127.0.0.1:8080/"`
	StateSigningKey string `env:"TILEDUEL_STATE_SIGNING_KEY"`
	// Contract is set from the -contract flag only.
	Contract        string
}

// RegisterSessionFlags binds the shared session flags to s.
func RegisterSessionFlags(fs *flag.FlagSet, s *Session) {
	fs.StringVar(&s.Network, "network", s.Network, "network environment (production, development, betanet, local, test)")
	fs.StringVar(&s.Contract, "contract", s.Contract, "contract account id (overrides TILEDUEL_CONTRACT_NAME)")
	fs.StringVar(&s.Profile, "profile", s.Profile, "contract profile: solo or matched")
	fs.StringVar(&s.KeystorePath, "keystore", s.KeystorePath, "SQLite key store path (empty keeps keys in memory)")
	fs.StringVar(&s.BaseURL, "base-url", s.BaseURL, "application URL the wallet returns to")
}

// Build resolves the network and returns the session config and contract
// profile.
func (s Session) Build() (session.Config, contract.Profile, error) {
	network, err := netconfig.Load(s.Network, "")
	if err != nil {
		return session.Config{}, 0, err
	}
	if s.Contract != "" {
		network.ContractName = s.Contract
	}
	profile, err := contract.ParseProfile(s.Profile)
	if err != nil {
		return session.Config{}, 0, err
	}
	stateKey, err := wallet.ParseStateKey(s.StateSigningKey)
	if err != nil {
		return session.Config{}, 0, fmt.Errorf("state signing key: %w", err)
	}
	return session.Config{
		Network:      network,
		AppKeyPrefix: s.AppKeyPrefix,
		BaseURL:      s.BaseURL,
		StateKey:     stateKey,
	}, profile, nil
}

// Config holds gateway command configuration.
type Config struct {
	Session
	HTTPAddr string `env:"TILEDUEL_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	GRPCPort int    `env:"TILEDUEL_GRPC_PORT" envDefault:"8090"`

	// Gas is the prepaid gas per change call; zero uses 30 TGas.
	Gas uint64 `env:"TILEDUEL_GAS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args, func(fs *flag.FlagSet, cfg *Config) {
		RegisterSessionFlags(fs, &cfg.Session)
		fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "API listen address")
		fs.IntVar(&cfg.GRPCPort, "grpc-port", cfg.GRPCPort, "gRPC health port on loopback")
		fs.Uint64Var(&cfg.Gas, "gas", cfg.Gas, "prepaid gas per change call")
	}); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run boots the session and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	sessionCfg, profile, err := cfg.Session.Build()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGateway, func(ctx context.Context) error {
		return app.Run(ctx, app.Config{
			HTTPAddr: cfg.HTTPAddr,
			GRPCPort: cfg.GRPCPort,
			Session:  sessionCfg,
			Profile:  profile,
			Gas:      cfg.Gas,
		}, app.StoreAt(cfg.KeystorePath))
	})
}
