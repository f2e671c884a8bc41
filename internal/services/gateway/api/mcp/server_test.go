package mcpapi_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	mcpapi "github.com/louisbranch/tileduel/internal/services/gateway/api/mcp"
	"github.com/louisbranch/tileduel/internal/services/gateway/balance"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract/contractstub"
	"github.com/louisbranch/tileduel/internal/services/gateway/keystore"
	"github.com/louisbranch/tileduel/internal/services/gateway/match"
	"github.com/louisbranch/tileduel/internal/services/gateway/near/neartest"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
	"github.com/louisbranch/tileduel/internal/services/gateway/session/sessiontest"
)

func deployedNode(t *testing.T) *neartest.Node {
	t.Helper()
	node := neartest.NewNode(t)
	stub := contractstub.New()
	stub.Refund = node.Credit
	node.Deploy(sessiontest.ContractID, stub)
	return node
}

func connect(t *testing.T, manager *session.Manager, facade *contract.Facade) *mcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	server := mcpapi.New(manager, facade)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() { serveErr <- mcpapi.Serve(ctx, server, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	clientCtx, clientCancel := context.WithTimeout(context.Background(), time.Second)
	defer clientCancel()
	clientSession, err := client.Connect(clientCtx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		defer clientSession.Close()
		select {
		case err := <-serveErr:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("server did not stop after cancel")
		}
	})
	return clientSession
}

func TestToolsAreRegistered(t *testing.T) {
	node := deployedNode(t)
	manager := sessiontest.New(t, node, keystore.NewMemory())
	clientSession := connect(t, manager, contract.New(manager, contract.ProfileMatched, 0))

	listed, err := clientSession.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range listed.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{
		"session_status", "balance", "tiles", "players", "match_observe",
		"match_choose_opponent", "match_post_stake", "match_cancel", "game_move",
	} {
		if !got[name] {
			t.Errorf("tool %s is not registered", name)
		}
	}
}

func TestSignedOutToolCallIsToolError(t *testing.T) {
	node := deployedNode(t)
	manager := sessiontest.New(t, node, keystore.NewMemory())
	clientSession := connect(t, manager, contract.New(manager, contract.ProfileMatched, 0))

	result, err := clientSession.CallTool(context.Background(), &mcp.CallToolParams{Name: "balance", Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a tool error")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok || !strings.Contains(text.Text, "sign in") {
		t.Fatalf("content = %#v", result.Content)
	}
}

func TestSessionStatusHandler(t *testing.T) {
	node := deployedNode(t)
	manager := sessiontest.Player(t, node, "alice.testnet", 5)
	node.ResetLog()

	_, out, err := mcpapi.SessionStatusHandler(manager, contract.ProfileSolo)(context.Background(), &mcp.CallToolRequest{}, mcpapi.EmptyInput{})
	if err != nil {
		t.Fatalf("session status: %v", err)
	}
	if !out.SignedIn || out.AccountID != "alice.testnet" || out.Profile != "solo" || out.ContractID != sessiontest.ContractID {
		t.Fatalf("status = %+v", out)
	}
	if methods := node.Methods(); len(methods) != 0 {
		t.Fatalf("node saw %v", methods)
	}
}

func TestBalanceHandler(t *testing.T) {
	node := deployedNode(t)
	manager := sessiontest.Player(t, node, "alice.testnet", 5)

	_, out, err := mcpapi.BalanceHandler(balance.NewAccessor(manager))(context.Background(), &mcp.CallToolRequest{}, mcpapi.EmptyInput{})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if out.Available != "4.95" || out.Raw != "5000000000000000000000000" {
		t.Fatalf("balance = %+v", out)
	}
}

func TestGameMoveAndTiles(t *testing.T) {
	node := deployedNode(t)
	manager := sessiontest.Player(t, node, "alice.testnet", 5)
	facade := contract.New(manager, contract.ProfileMatched, 0)
	coordinator := match.NewCoordinator(facade, manager)
	ctx := context.Background()
	if _, err := facade.NewGame(ctx, true); err != nil {
		t.Fatalf("new game: %v", err)
	}

	_, before, err := mcpapi.TilesHandler(facade)(ctx, &mcp.CallToolRequest{}, mcpapi.TilesInput{AccountID: "alice.testnet"})
	if err != nil {
		t.Fatalf("tiles: %v", err)
	}
	if before.Solved || len(before.Tiles) != contract.BoardSize {
		t.Fatalf("tiles = %+v", before)
	}

	solved := make([]int, 0, contract.BoardSize)
	for _, cell := range contract.SolvedTiles {
		solved = append(solved, int(cell))
	}
	_, moved, err := mcpapi.GameMoveHandler(coordinator)(ctx, &mcp.CallToolRequest{}, mcpapi.GameMoveInput{Tiles: solved})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.TxHash == "" {
		t.Fatalf("move = %+v", moved)
	}

	_, after, err := mcpapi.TilesHandler(facade)(ctx, &mcp.CallToolRequest{}, mcpapi.TilesInput{AccountID: "alice.testnet"})
	if err != nil {
		t.Fatalf("tiles: %v", err)
	}
	if !after.Solved {
		t.Fatalf("tiles after move = %+v", after)
	}
}

func TestGameMoveRejectsShortBoard(t *testing.T) {
	node := deployedNode(t)
	manager := sessiontest.Player(t, node, "alice.testnet", 5)
	coordinator := match.NewCoordinator(contract.New(manager, contract.ProfileMatched, 0), manager)
	node.ResetLog()

	result, _, err := mcpapi.GameMoveHandler(coordinator)(context.Background(), &mcp.CallToolRequest{}, mcpapi.GameMoveInput{Tiles: []int{1, 2, 3}})
	if result != nil {
		t.Fatal("expected nil result on error")
	}
	if apperrors.CodeOf(err) != apperrors.CodeInvalidTiles {
		t.Fatalf("err = %v", err)
	}
	if txs := node.Transactions(); len(txs) != 0 {
		t.Fatalf("broadcast %d transactions", len(txs))
	}
}

func TestMatchTools(t *testing.T) {
	node := deployedNode(t)
	ctx := context.Background()
	for _, id := range []string{"alice.testnet", "bob.testnet"} {
		m := sessiontest.Player(t, node, id, 5)
		if _, err := contract.New(m, contract.ProfileMatched, 0).AddMeToPlayers(ctx); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	manager := sessiontest.Player(t, node, "carol.testnet", 5)
	facade := contract.New(manager, contract.ProfileMatched, 0)
	if _, err := facade.AddMeToPlayers(ctx); err != nil {
		t.Fatalf("register carol: %v", err)
	}
	coordinator := match.NewCoordinator(facade, manager)
	req := &mcp.CallToolRequest{}

	if _, _, err := mcpapi.MatchChooseOpponentHandler(coordinator)(ctx, req, mcpapi.ChooseOpponentInput{OpponentID: "bob.testnet"}); err != nil {
		t.Fatalf("choose opponent: %v", err)
	}
	if _, _, err := mcpapi.MatchPostStakeHandler(coordinator)(ctx, req, mcpapi.PostStakeInput{Amount: "0.5"}); err != nil {
		t.Fatalf("post stake: %v", err)
	}
	_, state, err := mcpapi.MatchObserveHandler(coordinator)(ctx, req, mcpapi.MatchObserveInput{})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if state.Status != "price-set" || state.Opponent != "bob.testnet" || state.Price != "500000000000000000000000" {
		t.Fatalf("state = %+v", state)
	}

	_, players, err := mcpapi.PlayersHandler(facade)(ctx, req, mcpapi.EmptyInput{})
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players.Players) != 3 || players.Players[2].AccountID != "carol.testnet" {
		t.Fatalf("players = %+v", players)
	}

	_, cancelled, err := mcpapi.MatchCancelHandler(coordinator)(ctx, req, mcpapi.EmptyInput{})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != "cancelled" {
		t.Fatalf("cancel = %+v", cancelled)
	}

	_, _, err = mcpapi.MatchCancelHandler(coordinator)(ctx, req, mcpapi.EmptyInput{})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("second cancel err = %v", err)
	}
}
