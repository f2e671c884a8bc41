// Package tilectl builds the tilectl inspection CLI: it opens the gateway's
// persisted session and prints what the contract and node report.
package tilectl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	gatewaycmd "github.com/louisbranch/tileduel/internal/cmd/gateway"
	entrypoint "github.com/louisbranch/tileduel/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/tileduel/internal/platform/grpc"
	"github.com/louisbranch/tileduel/internal/services/gateway/app"
	"github.com/louisbranch/tileduel/internal/services/gateway/balance"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
)

const healthDialTimeout = 5 * time.Second

// Config holds tilectl configuration.
type Config struct {
	gatewaycmd.Session
	GRPCAddr string `env:"TILEDUEL_GRPC_ADDR" envDefault:"127.0.0.1:8090"`
}

// NewRootCommand returns the tilectl command tree with env defaults loaded.
func NewRootCommand() (*cobra.Command, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return nil, err
	}
	fs := flag.NewFlagSet("tilectl", flag.ContinueOnError)
	gatewaycmd.RegisterSessionFlags(fs, &cfg.Session)
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gateway gRPC health address")

	root := &cobra.Command{
		Use:           "tilectl",
		Short:         "Inspect the tile duel gateway session and contract",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddGoFlagSet(fs)
	root.AddCommand(
		statusCommand(&cfg),
		balanceCommand(&cfg),
		tilesCommand(&cfg),
		playersCommand(&cfg),
		healthCommand(&cfg),
	)
	return root, nil
}

type sessionFunc func(ctx context.Context, manager *session.Manager, facade *contract.Facade) error

// withSession opens the persisted session for the duration of fn.
func withSession(ctx context.Context, cfg *Config, fn sessionFunc) error {
	sessionCfg, profile, err := cfg.Session.Build()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCLI, func(ctx context.Context) error {
		manager := session.NewManager(sessionCfg, app.StoreAt(cfg.KeystorePath))
		if err := manager.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize session: %w", err)
		}
		defer manager.Close()
		return fn(ctx, manager, contract.New(manager, profile, 0))
	})
}

func statusCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the network, contract and signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), cfg, func(_ context.Context, manager *session.Manager, facade *contract.Facade) error {
				account, ok := manager.AccountID()
				if !ok {
					account = pterm.LightRed("not signed in")
				}
				data := pterm.TableData{
					{"network", manager.NetworkID()},
					{"contract", manager.ContractID()},
					{"profile", facade.Profile().String()},
					{"account", account},
				}
				return render(cmd.OutOrStdout(), pterm.DefaultTable.WithData(data))
			})
		},
	}
}

func balanceCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the NEAR available to stake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), cfg, func(ctx context.Context, manager *session.Manager, _ *contract.Facade) error {
				snapshot, err := balance.NewAccessor(manager).Snapshot(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s NEAR available (%s yoctoNEAR)\n", pterm.LightCyan(snapshot.Available), snapshot.Raw)
				return err
			})
		},
	}
}

func tilesCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tiles [account]",
		Short: "Draw a board, the caller's by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), cfg, func(ctx context.Context, _ *session.Manager, facade *contract.Facade) error {
				var (
					tiles contract.Tiles
					err   error
				)
				if len(args) == 1 {
					tiles, err = facade.GetTilesOf(ctx, args[0])
				} else {
					tiles, err = facade.GetTiles(ctx)
				}
				if err != nil {
					return err
				}
				if err := render(cmd.OutOrStdout(), pterm.DefaultTable.WithBoxed().WithData(board(tiles))); err != nil {
					return err
				}
				if tiles.Solved() {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), pterm.LightGreen("solved"))
				}
				return err
			})
		},
	}
}

// board lays the cells out in rows of four with the gap left blank.
func board(tiles contract.Tiles) pterm.TableData {
	data := make(pterm.TableData, 0, 4)
	for row := 0; row < 4; row++ {
		cells := make([]string, 4)
		for col := 0; col < 4; col++ {
			if cell := tiles[row*4+col]; cell != 0 {
				cells[col] = strconv.Itoa(int(cell))
			}
		}
		data = append(data, cells)
	}
	return data
}

func playersCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "List registered players, stakes and opponents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), cfg, func(ctx context.Context, _ *session.Manager, facade *contract.Facade) error {
				players, err := facade.GetPlayers(ctx)
				if err != nil {
					return err
				}
				data := pterm.TableData{{"account", "stake (NEAR)", "opponent", "playing"}}
				for _, p := range players {
					data = append(data, []string{p.AccountID, near.FormatNEAR(p.Price, 2), p.Opponent, strconv.FormatBool(p.IsPlay)})
				}
				return render(cmd.OutOrStdout(), pterm.DefaultTable.WithHasHeader().WithData(data))
			})
		},
	}
}

func healthCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that a running gateway reports SERVING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := platformgrpc.Probe(cmd.Context(), cfg.GRPCAddr, healthDialTimeout, nil); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "gateway at %s is %s\n", cfg.GRPCAddr, pterm.LightGreen("SERVING"))
			return err
		},
	}
}

func render(out io.Writer, table *pterm.TablePrinter) error {
	text, err := table.Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, text)
	return err
}
