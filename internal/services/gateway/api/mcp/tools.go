package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/tileduel/internal/services/gateway/balance"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/match"
	"github.com/louisbranch/tileduel/internal/services/gateway/session"
)

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// SessionStatusResult describes the wallet session.
type SessionStatusResult struct {
	SignedIn   bool   `json:"signed_in" jsonschema:"whether a wallet account is signed in"`
	AccountID  string `json:"account_id,omitempty" jsonschema:"signed-in account id"`
	ContractID string `json:"contract_id" jsonschema:"contract account the session calls"`
	NetworkID  string `json:"network_id" jsonschema:"NEAR network id"`
	Profile    string `json:"profile" jsonschema:"contract profile (solo, matched)"`
}

// SessionStatusTool defines the session_status tool.
func SessionStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "session_status",
		Description: "Reports whether a wallet account is signed in and which contract the gateway calls.",
	}
}

// SessionStatusHandler answers from the local session without a network call.
func SessionStatusHandler(manager *session.Manager, profile contract.Profile) mcp.ToolHandlerFor[EmptyInput, SessionStatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, SessionStatusResult, error) {
		accountID, signedIn := manager.AccountID()
		return nil, SessionStatusResult{
			SignedIn:   signedIn,
			AccountID:  accountID,
			ContractID: manager.ContractID(),
			NetworkID:  manager.NetworkID(),
			Profile:    profile.String(),
		}, nil
	}
}

// BalanceResult is the signed-in account's spendable balance.
type BalanceResult struct {
	Available string `json:"available" jsonschema:"NEAR available to stake after the fee reserve, two decimals"`
	Raw       string `json:"raw" jsonschema:"available balance in yoctoNEAR"`
}

// BalanceTool defines the balance tool.
func BalanceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "balance",
		Description: "Returns the signed-in account's balance available for staking, less a 0.05 NEAR fee reserve.",
	}
}

// BalanceHandler reads the balance through the accessor.
func BalanceHandler(accessor *balance.Accessor) mcp.ToolHandlerFor[EmptyInput, BalanceResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, BalanceResult, error) {
		snapshot, err := accessor.Snapshot(ctx)
		if err != nil {
			return nil, BalanceResult{}, err
		}
		return nil, BalanceResult{Available: snapshot.Available, Raw: snapshot.Raw.String()}, nil
	}
}

// TilesInput selects whose board to read.
type TilesInput struct {
	AccountID string `json:"account_id,omitempty" jsonschema:"account whose board to read (defaults to the caller)"`
}

// TilesResult is one board.
type TilesResult struct {
	Tiles  []int `json:"tiles" jsonschema:"16 cells in row order, 0 is the gap"`
	Solved bool  `json:"solved" jsonschema:"whether the board is in the goal position"`
}

// TilesTool defines the tiles tool.
func TilesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "tiles",
		Description: "Reads a 15-puzzle board from the contract.",
	}
}

// TilesHandler reads the caller's board or, in the matched profile, another
// player's.
func TilesHandler(facade *contract.Facade) mcp.ToolHandlerFor[TilesInput, TilesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input TilesInput) (*mcp.CallToolResult, TilesResult, error) {
		var (
			tiles contract.Tiles
			err   error
		)
		if input.AccountID == "" {
			tiles, err = facade.GetTiles(ctx)
		} else {
			tiles, err = facade.GetTilesOf(ctx, input.AccountID)
		}
		if err != nil {
			return nil, TilesResult{}, err
		}
		return nil, tilesResult(tiles), nil
	}
}

func tilesResult(tiles contract.Tiles) TilesResult {
	cells := make([]int, len(tiles))
	for i, cell := range tiles {
		cells[i] = int(cell)
	}
	return TilesResult{Tiles: cells, Solved: tiles.Solved()}
}

// PlayerResult is one registered player.
type PlayerResult struct {
	AccountID string `json:"account_id" jsonschema:"player account id"`
	Price     string `json:"price" jsonschema:"escrowed stake in yoctoNEAR"`
	Opponent  string `json:"opponent,omitempty" jsonschema:"chosen opponent"`
	IsPlay    bool   `json:"is_play" jsonschema:"whether the player has accepted a game"`
}

// PlayersResult lists players.
type PlayersResult struct {
	Players []PlayerResult `json:"players" jsonschema:"registered players in registration order"`
}

// PlayersTool defines the players tool.
func PlayersTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "players",
		Description: "Lists registered players with their stakes and opponents.",
	}
}

// PlayersHandler lists players.
func PlayersHandler(facade *contract.Facade) mcp.ToolHandlerFor[EmptyInput, PlayersResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, PlayersResult, error) {
		players, err := facade.GetPlayers(ctx)
		if err != nil {
			return nil, PlayersResult{}, err
		}
		out := PlayersResult{Players: make([]PlayerResult, 0, len(players))}
		for _, p := range players {
			out.Players = append(out.Players, PlayerResult{
				AccountID: p.AccountID,
				Price:     p.Price.String(),
				Opponent:  p.Opponent,
				IsPlay:    p.IsPlay,
			})
		}
		return nil, out, nil
	}
}

// MatchObserveInput optionally names the opponent to compare against.
type MatchObserveInput struct {
	OpponentID string `json:"opponent_id,omitempty" jsonschema:"opponent account (defaults to the recorded opponent)"`
}

// MatchStateResult is one observation of the caller's match.
type MatchStateResult struct {
	AccountID       string `json:"account_id" jsonschema:"caller account id"`
	Opponent        string `json:"opponent,omitempty" jsonschema:"recorded opponent"`
	Price           string `json:"price" jsonschema:"caller stake in yoctoNEAR"`
	OpponentPrice   string `json:"opponent_price" jsonschema:"opponent stake in yoctoNEAR"`
	Playing         bool   `json:"playing" jsonschema:"caller has accepted the game"`
	OpponentPlaying bool   `json:"opponent_playing" jsonschema:"opponent has accepted the game"`
	Tiles           []int  `json:"tiles,omitempty" jsonschema:"caller board once the match is active"`
	Status          string `json:"status" jsonschema:"unset, opponent-set, price-set, active or settled"`
}

// MatchObserveTool defines the match_observe tool.
func MatchObserveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "match_observe",
		Description: "Reads the caller's match from the contract and derives its status.",
	}
}

// MatchObserveHandler observes the match.
func MatchObserveHandler(coordinator *match.Coordinator) mcp.ToolHandlerFor[MatchObserveInput, MatchStateResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MatchObserveInput) (*mcp.CallToolResult, MatchStateResult, error) {
		state, err := coordinator.Observe(ctx, input.OpponentID)
		if err != nil {
			return nil, MatchStateResult{}, err
		}
		out := MatchStateResult{
			AccountID:       state.AccountID,
			Opponent:        state.Opponent,
			Price:           state.Price.String(),
			OpponentPrice:   state.OpponentPrice.String(),
			Playing:         state.Playing,
			OpponentPlaying: state.OpponentPlaying,
			Status:          string(state.Status),
		}
		if state.Tiles != nil {
			out.Tiles = tilesResult(*state.Tiles).Tiles
		}
		return nil, out, nil
	}
}

// TransitionResult is the outcome of a change call.
type TransitionResult struct {
	TxHash string `json:"tx_hash" jsonschema:"transaction hash"`
	Status string `json:"status,omitempty" jsonschema:"resulting match status when the call determines it"`
}

func transitionResult(t match.Transition) TransitionResult {
	return TransitionResult{TxHash: t.TxHash, Status: string(t.Status)}
}

// ChooseOpponentInput names the opponent.
type ChooseOpponentInput struct {
	OpponentID string `json:"opponent_id" jsonschema:"registered player to play against"`
}

// MatchChooseOpponentTool defines the match_choose_opponent tool.
func MatchChooseOpponentTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "match_choose_opponent",
		Description: "Binds the caller to an opponent from the player list.",
	}
}

// MatchChooseOpponentHandler sets the opponent.
func MatchChooseOpponentHandler(coordinator *match.Coordinator) mcp.ToolHandlerFor[ChooseOpponentInput, TransitionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ChooseOpponentInput) (*mcp.CallToolResult, TransitionResult, error) {
		transition, err := coordinator.ChooseOpponent(ctx, input.OpponentID)
		if err != nil {
			return nil, TransitionResult{}, err
		}
		return nil, transitionResult(transition), nil
	}
}

// PostStakeInput carries the stake.
type PostStakeInput struct {
	Amount string `json:"amount" jsonschema:"stake in NEAR as a decimal string, e.g. 1.5"`
}

// MatchPostStakeTool defines the match_post_stake tool.
func MatchPostStakeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "match_post_stake",
		Description: "Escrows a stake in NEAR with the contract.",
	}
}

// MatchPostStakeHandler posts the stake.
func MatchPostStakeHandler(coordinator *match.Coordinator) mcp.ToolHandlerFor[PostStakeInput, TransitionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PostStakeInput) (*mcp.CallToolResult, TransitionResult, error) {
		transition, err := coordinator.PostStake(ctx, input.Amount)
		if err != nil {
			return nil, TransitionResult{}, err
		}
		return nil, transitionResult(transition), nil
	}
}

// MatchCancelTool defines the match_cancel tool.
func MatchCancelTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "match_cancel",
		Description: "Withdraws the caller's stake and cancels the match.",
	}
}

// MatchCancelHandler cancels the match.
func MatchCancelHandler(coordinator *match.Coordinator) mcp.ToolHandlerFor[EmptyInput, TransitionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, TransitionResult, error) {
		transition, err := coordinator.Cancel(ctx)
		if err != nil {
			return nil, TransitionResult{}, err
		}
		return nil, transitionResult(transition), nil
	}
}

// GameMoveInput is the proposed board.
type GameMoveInput struct {
	Tiles []int `json:"tiles" jsonschema:"16 cells after one slide, 0 is the gap"`
}

// GameMoveTool defines the game_move tool.
func GameMoveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "game_move",
		Description: "Proposes the caller's board after sliding one tile into the gap.",
	}
}

// GameMoveHandler submits the move.
func GameMoveHandler(coordinator *match.Coordinator) mcp.ToolHandlerFor[GameMoveInput, TransitionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GameMoveInput) (*mcp.CallToolResult, TransitionResult, error) {
		tiles, err := parseTiles(input.Tiles)
		if err != nil {
			return nil, TransitionResult{}, err
		}
		transition, err := coordinator.Move(ctx, tiles)
		if err != nil {
			return nil, TransitionResult{}, err
		}
		return nil, transitionResult(transition), nil
	}
}

// parseTiles runs the cells through the board's JSON validation.
func parseTiles(cells []int) (contract.Tiles, error) {
	raw, err := json.Marshal(cells)
	if err != nil {
		return contract.Tiles{}, fmt.Errorf("encode tiles: %w", err)
	}
	var tiles contract.Tiles
	if err := json.Unmarshal(raw, &tiles); err != nil {
		return contract.Tiles{}, err
	}
	return tiles, nil
}
