// Package mcpapi exposes the gateway's contract and match operations as MCP
// tools over one wallet session.
package mcpapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/tileduel/internal/services/gateway/balance"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/match"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
)

const (
	serverName    = "Tile Duel Gateway MCP"
	serverVersion = "0.1.0"
)

// New returns an MCP server with every gateway tool registered.
func New(manager *session.Manager, facade *contract.Facade) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	coordinator := match.NewCoordinator(facade, manager)

	mcp.AddTool(server, SessionStatusTool(), SessionStatusHandler(manager, facade.Profile()))
	mcp.AddTool(server, BalanceTool(), BalanceHandler(balance.NewAccessor(manager)))
	mcp.AddTool(server, TilesTool(), TilesHandler(facade))
	mcp.AddTool(server, PlayersTool(), PlayersHandler(facade))
	mcp.AddTool(server, MatchObserveTool(), MatchObserveHandler(coordinator))
	mcp.AddTool(server, MatchChooseOpponentTool(), MatchChooseOpponentHandler(coordinator))
	mcp.AddTool(server, MatchPostStakeTool(), MatchPostStakeHandler(coordinator))
	mcp.AddTool(server, MatchCancelTool(), MatchCancelHandler(coordinator))
	mcp.AddTool(server, GameMoveTool(), GameMoveHandler(coordinator))
	return server
}

// Serve runs server over transport until the client disconnects or ctx
// ends. Cancellation is a clean stop.
func Serve(ctx context.Context, server *mcp.Server, transport mcp.Transport) error {
	if server == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := server.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}
