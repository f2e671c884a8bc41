// Package match sequences the façade calls of a two-player staked match and
// derives the match status from fresh contract reads.
//
// The coordinator keeps no match state of its own. Every Observe re-reads
// the contract, and every transition is a single change call whose failure
// is returned as-is.
package match

import (
	"context"

	sdkmath "cosmossdk.io/math"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

// Status is the observed phase of a match.
type Status string

const (
	StatusUnset       Status = "unset"
	StatusOpponentSet Status = "opponent-set"
	StatusPriceSet    Status = "price-set"
	StatusActive      Status = "active"
	StatusSettled     Status = "settled"
	StatusCancelled   Status = "cancelled"
)

// Contract is the façade surface the coordinator drives.
type Contract interface {
	SetOpponent(ctx context.Context, opponentID string) (near.Outcome, error)
	SetPrice(ctx context.Context, amount string) (near.Outcome, error)
	WithdrawCancelPrice(ctx context.Context) (near.Outcome, error)
	Run(ctx context.Context, tiles contract.Tiles) (near.Outcome, error)
	GetPlayers(ctx context.Context) ([]contract.Player, error)
	GetOpponent(ctx context.Context, accountID string) (string, bool, error)
	IsPlayPlayer(ctx context.Context, playerID string) (bool, error)
	GetTilesOf(ctx context.Context, accountID string) (contract.Tiles, error)
}

// Identity reports the signed-in account.
type Identity interface {
	AccountID() (string, bool)
}

// Transition is the outcome of one change call.
type Transition struct {
	TxHash string `json:"tx_hash"`
	// Status is set only when the call itself determines it.
	Status Status `json:"status,omitempty"`
}

// State is one observation of the caller's match.
type State struct {
	AccountID       string          `json:"account_id"`
	Opponent        string          `json:"opponent,omitempty"`
	Price           sdkmath.Int     `json:"price"`
	OpponentPrice   sdkmath.Int     `json:"opponent_price"`
	Playing         bool            `json:"playing"`
	OpponentPlaying bool            `json:"opponent_playing"`
	Tiles           *contract.Tiles `json:"tiles,omitempty"`
	Status          Status          `json:"status"`
}

// Coordinator drives one signed-in player's match.
type Coordinator struct {
	contract Contract
	identity Identity
}

// NewCoordinator returns a coordinator over the façade.
func NewCoordinator(c Contract, identity Identity) *Coordinator {
	return &Coordinator{contract: c, identity: identity}
}

func (c *Coordinator) self() (string, error) {
	id, ok := c.identity.AccountID()
	if !ok {
		return "", apperrors.New(apperrors.CodeNotSignedIn, "sign in with the wallet first")
	}
	return id, nil
}

// ChooseOpponent binds the caller to opponentID (unset -> opponent-set).
func (c *Coordinator) ChooseOpponent(ctx context.Context, opponentID string) (Transition, error) {
	outcome, err := c.contract.SetOpponent(ctx, opponentID)
	if err != nil {
		return Transition{}, err
	}
	return Transition{TxHash: outcome.TxHash}, nil
}

// PostStake escrows amount NEAR (opponent-set -> price-set).
func (c *Coordinator) PostStake(ctx context.Context, amount string) (Transition, error) {
	outcome, err := c.contract.SetPrice(ctx, amount)
	if err != nil {
		return Transition{}, err
	}
	return Transition{TxHash: outcome.TxHash}, nil
}

// Cancel withdraws the caller's stake. A successful call ends the match.
func (c *Coordinator) Cancel(ctx context.Context) (Transition, error) {
	outcome, err := c.contract.WithdrawCancelPrice(ctx)
	if err != nil {
		return Transition{}, err
	}
	return Transition{TxHash: outcome.TxHash, Status: StatusCancelled}, nil
}

// Move proposes the caller's board after one slide.
func (c *Coordinator) Move(ctx context.Context, tiles contract.Tiles) (Transition, error) {
	outcome, err := c.contract.Run(ctx, tiles)
	if err != nil {
		return Transition{}, err
	}
	return Transition{TxHash: outcome.TxHash}, nil
}

// Observe reads the match from the contract. opponentID may be empty, in
// which case the caller's recorded opponent is used. The board is read only
// once both parties are playing.
func (c *Coordinator) Observe(ctx context.Context, opponentID string) (State, error) {
	self, err := c.self()
	if err != nil {
		return State{}, err
	}
	state := State{AccountID: self, Price: sdkmath.ZeroInt(), OpponentPrice: sdkmath.ZeroInt()}

	players, err := c.contract.GetPlayers(ctx)
	if err != nil {
		return State{}, err
	}
	recorded, hasOpponent, err := c.contract.GetOpponent(ctx, self)
	if err != nil {
		return State{}, err
	}
	if hasOpponent {
		state.Opponent = recorded
	}
	if opponentID == "" {
		opponentID = state.Opponent
	}

	for _, p := range players {
		switch p.AccountID {
		case self:
			state.Price = p.Price
		case opponentID:
			state.OpponentPrice = p.Price
		}
	}

	if state.Playing, err = c.contract.IsPlayPlayer(ctx, self); err != nil {
		return State{}, err
	}
	if opponentID != "" {
		if state.OpponentPlaying, err = c.contract.IsPlayPlayer(ctx, opponentID); err != nil {
			return State{}, err
		}
	}

	state.Status = derive(state)
	if state.Status == StatusActive {
		tiles, err := c.contract.GetTilesOf(ctx, self)
		if err != nil {
			return State{}, err
		}
		state.Tiles = &tiles
		if tiles.Solved() {
			state.Status = StatusSettled
		}
	}
	return state, nil
}

func derive(s State) Status {
	switch {
	case s.Playing && s.OpponentPlaying:
		return StatusActive
	case s.Price.IsPositive():
		return StatusPriceSet
	case s.Opponent != "":
		return StatusOpponentSet
	default:
		return StatusUnset
	}
}
