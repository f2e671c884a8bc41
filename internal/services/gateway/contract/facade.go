// Package contract is the typed façade over the puzzle contract.
//
// Every method issues exactly one remote call with a fixed argument shape.
// Views go through the node's call_function query; changes are signed
// function-call transactions from the signed-in account. A call the session
// key may not sign, such as one attaching a deposit, fails with
// WALLET_APPROVAL_REQUIRED and the wallet URL that signs it. Responses are only
// projected into Go types; contract rejections come back unmodified as
// *near.RPCError or *near.ExecutionError.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
	"github.com/louisbranch/tileduel/internal/services/gateway/near"
)

// Session is what the façade needs from the session manager.
type Session interface {
	Connection() (*near.Connection, error)
	Account() (*near.Account, error)
	AccountID() (string, bool)
	ContractID() string
	ApprovalURL(ctx context.Context, req *near.ApprovalRequiredError) (string, error)
}

// Facade calls the contract within one capability profile.
type Facade struct {
	session Session
	profile Profile
	gas     uint64
}

// New returns a façade. A zero gas uses near.DefaultGas.
func New(session Session, profile Profile, gas uint64) *Facade {
	if gas == 0 {
		gas = near.DefaultGas
	}
	return &Facade{session: session, profile: profile, gas: gas}
}

// Profile returns the configured profile.
func (f *Facade) Profile() Profile {
	return f.profile
}

func (f *Facade) require(name string, kind Kind) error {
	method, ok := f.profile.Lookup(name)
	if !ok || method.Kind != kind {
		return apperrors.WithMetadata(
			apperrors.CodeProfileUnsupported,
			fmt.Sprintf("%s is not available in the %s profile", name, f.profile),
			map[string]string{"method": name, "profile": f.profile.String()},
		)
	}
	return nil
}

func (f *Facade) view(ctx context.Context, method string, args any, out any) error {
	if err := f.require(method, KindView); err != nil {
		return err
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", method, err)
	}
	conn, err := f.session.Connection()
	if err != nil {
		return err
	}
	raw, err := conn.Client.ViewFunction(ctx, f.session.ContractID(), method, encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// prepareChange runs the local checks for a change call. Nothing is sent.
func (f *Facade) prepareChange(method string) (*near.Account, error) {
	if err := f.require(method, KindChange); err != nil {
		return nil, err
	}
	return f.session.Account()
}

func (f *Facade) change(ctx context.Context, account *near.Account, method string, args any, deposit sdkmath.Int) (near.Outcome, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return near.Outcome{}, fmt.Errorf("encode %s args: %w", method, err)
	}
	outcome, err := account.FunctionCall(ctx, f.session.ContractID(), near.FunctionCall{
		MethodName: method,
		Args:       encoded,
		Gas:        f.gas,
		Deposit:    deposit,
	})
	var approval *near.ApprovalRequiredError
	if errors.As(err, &approval) {
		return near.Outcome{}, f.approvalRequired(ctx, approval)
	}
	return outcome, err
}

// approvalRequired turns a call the session key may not sign into a
// WALLET_APPROVAL_REQUIRED error carrying the wallet URL that signs it.
func (f *Facade) approvalRequired(ctx context.Context, approval *near.ApprovalRequiredError) error {
	walletURL, err := f.session.ApprovalURL(ctx, approval)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeApprovalRequired, approval.Error(), err)
	}
	return &apperrors.Error{
		Code:     apperrors.CodeApprovalRequired,
		Message:  "approve the call in the wallet at " + walletURL,
		Metadata: map[string]string{"wallet_url": walletURL},
		Cause:    approval,
	}
}

func (f *Facade) simpleChange(ctx context.Context, method string, args any) (near.Outcome, error) {
	account, err := f.prepareChange(method)
	if err != nil {
		return near.Outcome{}, err
	}
	return f.change(ctx, account, method, args, sdkmath.ZeroInt())
}

// signedInID returns the caller's account id for views keyed by caller.
func (f *Facade) signedInID() (string, error) {
	id, ok := f.session.AccountID()
	if !ok {
		return "", apperrors.New(apperrors.CodeNotSignedIn, "sign in with the wallet first")
	}
	return id, nil
}

type emptyArgs struct{}

// NewGame deals a new board, shuffled or not.
func (f *Facade) NewGame(ctx context.Context, shuffle bool) (near.Outcome, error) {
	return f.simpleChange(ctx, MethodNewGame, struct {
		Shuffle bool `json:"shuffle"`
	}{shuffle})
}

// NewGameWithTiles starts a game from a caller-chosen permutation, sent
// under the same shuffle key the deployed contract reads.
func (f *Facade) NewGameWithTiles(ctx context.Context, tiles Tiles) (near.Outcome, error) {
	return f.simpleChange(ctx, MethodNewGame, struct {
		Shuffle Tiles `json:"shuffle"`
	}{tiles})
}

// Run proposes the board after one move.
func (f *Facade) Run(ctx context.Context, tiles Tiles) (near.Outcome, error) {
	return f.simpleChange(ctx, MethodRun, struct {
		Tiles Tiles `json:"tiles"`
	}{tiles})
}

// GetTiles returns the caller's board.
func (f *Facade) GetTiles(ctx context.Context) (Tiles, error) {
	var tiles Tiles
	if err := f.view(ctx, MethodGetTiles, emptyArgs{}, &tiles); err != nil {
		return Tiles{}, err
	}
	return tiles, nil
}

// GetTilesOf returns accountID's board.
func (f *Facade) GetTilesOf(ctx context.Context, accountID string) (Tiles, error) {
	if err := f.requireMatched(MethodGetTiles); err != nil {
		return Tiles{}, err
	}
	accountID, err := near.NormalizeAccountID(accountID)
	if err != nil {
		return Tiles{}, err
	}
	var tiles Tiles
	if err := f.view(ctx, MethodGetTiles, accountArgs{accountID}, &tiles); err != nil {
		return Tiles{}, err
	}
	return tiles, nil
}

// requireMatched gates calls whose argument shape only the matched
// contract accepts.
func (f *Facade) requireMatched(method string) error {
	if f.profile != ProfileMatched {
		return apperrors.WithMetadata(
			apperrors.CodeProfileUnsupported,
			fmt.Sprintf("%s by account is not available in the %s profile", method, f.profile),
			map[string]string{"method": method, "profile": f.profile.String()},
		)
	}
	return nil
}

type accountArgs struct {
	AccountID string `json:"account_id"`
}

// GetPlayers lists every registered player with its stake and opponent.
func (f *Facade) GetPlayers(ctx context.Context) ([]Player, error) {
	var raw json.RawMessage
	if err := f.view(ctx, MethodGetPlayers, emptyArgs{}, &raw); err != nil {
		return nil, err
	}
	return decodePlayers(raw)
}

// AddMeToPlayers registers the caller as a player.
func (f *Facade) AddMeToPlayers(ctx context.Context) (near.Outcome, error) {
	return f.simpleChange(ctx, MethodAddMeToPlayers, emptyArgs{})
}

// IsIInPlayers reports whether the caller is registered.
func (f *Facade) IsIInPlayers(ctx context.Context) (bool, error) {
	if err := f.require(MethodIsIInPlayers, KindView); err != nil {
		return false, err
	}
	accountID, err := f.signedInID()
	if err != nil {
		return false, err
	}
	var in bool
	if err := f.view(ctx, MethodIsIInPlayers, accountArgs{accountID}, &in); err != nil {
		return false, err
	}
	return in, nil
}

// SetPrice escrows amount NEAR as the caller's stake. The amount travels as
// the transaction's attached deposit; the method arguments stay empty.
func (f *Facade) SetPrice(ctx context.Context, amount string) (near.Outcome, error) {
	if err := f.require(MethodSetPrice, KindChange); err != nil {
		return near.Outcome{}, err
	}
	deposit, err := near.ParseNEAR(amount)
	if err != nil {
		return near.Outcome{}, err
	}
	account, err := f.prepareChange(MethodSetPrice)
	if err != nil {
		return near.Outcome{}, err
	}
	return f.change(ctx, account, MethodSetPrice, emptyArgs{}, deposit)
}

// WithdrawCancelPrice returns the caller's stake and clears it.
func (f *Facade) WithdrawCancelPrice(ctx context.Context) (near.Outcome, error) {
	return f.simpleChange(ctx, MethodWithdrawCancel, emptyArgs{})
}

// SetOpponent binds the caller to opponentID.
func (f *Facade) SetOpponent(ctx context.Context, opponentID string) (near.Outcome, error) {
	if err := f.require(MethodSetOpponent, KindChange); err != nil {
		return near.Outcome{}, err
	}
	opponentID, err := near.NormalizeAccountID(opponentID)
	if err != nil {
		return near.Outcome{}, err
	}
	return f.simpleChange(ctx, MethodSetOpponent, struct {
		OpponentID string `json:"opponent_id"`
	}{opponentID})
}

// IsPlayPlayer reports whether playerID has accepted a game.
func (f *Facade) IsPlayPlayer(ctx context.Context, playerID string) (bool, error) {
	if err := f.require(MethodIsPlayPlayer, KindView); err != nil {
		return false, err
	}
	playerID, err := near.NormalizeAccountID(playerID)
	if err != nil {
		return false, err
	}
	var playing bool
	if err := f.view(ctx, MethodIsPlayPlayer, struct {
		PlayerID string `json:"player_id"`
	}{playerID}, &playing); err != nil {
		return false, err
	}
	return playing, nil
}

// GetOpponent returns accountID's opponent, if one is set.
func (f *Facade) GetOpponent(ctx context.Context, accountID string) (string, bool, error) {
	if err := f.require(MethodGetOpponent, KindView); err != nil {
		return "", false, err
	}
	accountID, err := near.NormalizeAccountID(accountID)
	if err != nil {
		return "", false, err
	}
	var opponent *string
	if err := f.view(ctx, MethodGetOpponent, accountArgs{accountID}, &opponent); err != nil {
		return "", false, err
	}
	if opponent == nil {
		return "", false, nil
	}
	return *opponent, true, nil
}
