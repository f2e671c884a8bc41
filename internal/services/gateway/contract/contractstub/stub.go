// Package contractstub emulates the matched puzzle contract in memory so
// gateway scenarios can run against a neartest node.
//
// Views that depend on the caller read it from the account_id argument. A
// view without one falls back to the most recent change caller, which is
// how a single-user solo deployment behaves.
package contractstub

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

// ShuffledTiles is the board new_game deals for {"shuffle": true}.
var ShuffledTiles = contract.Tiles{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 0, 15}

type player struct {
	price    sdkmath.Int
	opponent *string
	isPlay   bool
}

// Contract is the emulated contract state.
type Contract struct {
	// Refund receives stakes returned by withdraw_and_cancel_price.
	Refund func(accountID string, amount sdkmath.Int)

	mu         sync.Mutex
	order      []string
	players    map[string]*player
	games      map[string]contract.Tiles
	lastCaller string
	calls      []Call
	views      []Call
}

// Call records one invocation.
type Call struct {
	Signer  string
	Method  string
	Args    json.RawMessage
	Deposit sdkmath.Int
}

// New returns an empty contract.
func New() *Contract {
	return &Contract{players: map[string]*player{}, games: map[string]contract.Tiles{}}
}

// Calls returns the change calls received so far.
func (c *Contract) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Views returns the view calls received so far.
func (c *Contract) Views() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.views)
}

// SetTiles places a board for accountID directly.
func (c *Contract) SetTiles(accountID string, tiles contract.Tiles) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games[accountID] = tiles
}

func panicf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

var errNotFound = errors.New("Not found")

// View answers read-only methods.
func (c *Contract) View(method string, args []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views = append(c.views, Call{Method: method, Args: slices.Clone(args)})

	var in struct {
		AccountID *string `json:"account_id"`
		PlayerID  string  `json:"player_id"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, panicf("failed to deserialize input from JSON: %v", err)
	}
	caller := c.lastCaller
	if in.AccountID != nil {
		caller = *in.AccountID
	}

	switch method {
	case contract.MethodGetTiles:
		game, ok := c.games[caller]
		if !ok {
			return nil, errNotFound
		}
		return json.Marshal(game)
	case contract.MethodIsIInPlayers:
		return json.Marshal(slices.Contains(c.order, caller))
	case contract.MethodGetPlayers:
		if len(c.order) == 0 {
			return nil, panicf("there are no players")
		}
		records := make([]map[string]any, 0, len(c.order))
		for _, id := range c.order {
			p := c.players[id]
			records = append(records, map[string]any{
				"price":    json.Number(p.price.String()),
				"opponent": p.opponent,
				"is_play":  p.isPlay,
			})
		}
		return json.Marshal([]any{c.order, records})
	case contract.MethodGetOpponent:
		p, ok := c.players[caller]
		if !ok {
			return nil, errNotFound
		}
		return json.Marshal(p.opponent)
	case contract.MethodIsPlayPlayer:
		if err := near.ValidateAccountID(in.PlayerID); err != nil {
			return nil, panicf("Account does not exist")
		}
		if !slices.Contains(c.order, in.PlayerID) {
			return nil, panicf("the opponent is not from the list of players")
		}
		return json.Marshal(c.players[in.PlayerID].isPlay)
	default:
		return nil, panicf("MethodNotFound: %s", method)
	}
}

// Call applies a change method signed by signer.
func (c *Contract) Call(signer, method string, args []byte, deposit sdkmath.Int) ([]byte, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Signer: signer, Method: method, Args: slices.Clone(args), Deposit: deposit})
	c.lastCaller = signer
	refund, amount, err := c.apply(signer, method, args, deposit)
	hook := c.Refund
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if refund && hook != nil && amount.IsPositive() {
		hook(signer, amount)
	}
	return nil, nil
}

func (c *Contract) apply(signer, method string, args []byte, deposit sdkmath.Int) (bool, sdkmath.Int, error) {
	none := sdkmath.ZeroInt()
	switch method {
	case contract.MethodAddMeToPlayers:
		if slices.Contains(c.order, signer) {
			return false, none, panicf("you are already in the player list")
		}
		c.order = append(c.order, signer)
		c.players[signer] = &player{price: sdkmath.ZeroInt()}
		return false, none, nil

	case contract.MethodSetPrice:
		p, ok := c.players[signer]
		if !ok {
			return false, none, errNotFound
		}
		if !p.price.IsZero() {
			return false, none, panicf("you have already placed a bet")
		}
		p.price = deposit
		return false, none, nil

	case contract.MethodWithdrawCancel:
		p, ok := c.players[signer]
		if !ok {
			return false, none, errNotFound
		}
		if !p.price.IsPositive() {
			return false, none, panicf("you don't have a bid")
		}
		stake := p.price
		p.price = sdkmath.ZeroInt()
		p.isPlay = false
		return true, stake.Add(deposit), nil

	case contract.MethodSetOpponent:
		var in struct {
			OpponentID string `json:"opponent_id"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return false, none, panicf("failed to deserialize input from JSON: %v", err)
		}
		if err := near.ValidateAccountID(in.OpponentID); err != nil {
			return false, none, panicf("Account does not exist")
		}
		if !slices.Contains(c.order, in.OpponentID) {
			return false, none, panicf("the opponent is not from the list of players")
		}
		if !slices.Contains(c.order, signer) {
			return false, none, panicf("you are not in the player list")
		}
		p := c.players[signer]
		if p.opponent != nil {
			if previous, ok := c.players[*p.opponent]; ok && previous.isPlay && *p.opponent != in.OpponentID {
				return false, none, panicf("your previous opponent has already accepted the game, end the game")
			}
		}
		opponent := in.OpponentID
		p.opponent = &opponent
		p.isPlay = true
		return false, none, nil

	case contract.MethodNewGame:
		var in struct {
			Shuffle json.RawMessage `json:"shuffle"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return false, none, panicf("failed to deserialize input from JSON: %v", err)
		}
		var shuffle bool
		if err := json.Unmarshal(in.Shuffle, &shuffle); err == nil {
			if shuffle {
				c.games[signer] = ShuffledTiles
			} else {
				c.games[signer] = contract.SolvedTiles
			}
			return false, none, nil
		}
		var tiles contract.Tiles
		if err := json.Unmarshal(in.Shuffle, &tiles); err != nil {
			return false, none, panicf("failed to deserialize input from JSON: %v", err)
		}
		if err := checkTiles(tiles); err != nil {
			return false, none, err
		}
		if !solvable(tiles) {
			return false, none, panicf("the resulting permutation does not resolve")
		}
		c.games[signer] = tiles
		return false, none, nil

	case contract.MethodRun:
		var in struct {
			Tiles contract.Tiles `json:"tiles"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return false, none, panicf("failed to deserialize input from JSON: %v", err)
		}
		if err := checkTiles(in.Tiles); err != nil {
			return false, none, err
		}
		game, ok := c.games[signer]
		if !ok {
			return false, none, errNotFound
		}
		if err := checkMove(game, in.Tiles); err != nil {
			return false, none, err
		}
		c.games[signer] = in.Tiles
		return false, none, nil

	default:
		return false, none, panicf("MethodNotFound: %s", method)
	}
}

func checkTiles(tiles contract.Tiles) error {
	var seen [contract.BoardSize]bool
	for _, v := range tiles {
		if v > 15 {
			return panicf("unexpected number of values (0-15 needed)")
		}
		if seen[v] {
			return panicf("unexpected number of values (repetition of values)")
		}
		seen[v] = true
	}
	return nil
}

// solvable counts inversions among the first 15 cells.
func solvable(tiles contract.Tiles) bool {
	inversions := 0
	for i := 0; i < contract.BoardSize-1; i++ {
		for j := 0; j < i; j++ {
			if tiles[j] > tiles[i] {
				inversions++
			}
		}
	}
	return inversions%2 == 0
}

// checkMove accepts exactly one slide of a tile into the blank.
func checkMove(before, after contract.Tiles) error {
	var changed []int
	for i := range before {
		if before[i] != after[i] {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return panicf("the move was not made")
	}
	if len(changed) != 2 {
		return panicf("only one permutation can be done in one turn")
	}
	from, to := changed[0], changed[1]
	if before[from] != 0 && before[to] != 0 {
		return panicf("not a correct move")
	}
	diff := from - to
	if diff < 0 {
		diff = -diff
	}
	sameRow := from/4 == to/4
	if diff != 4 && !(diff == 1 && sameRow) {
		return panicf("not a correct move")
	}
	return nil
}
