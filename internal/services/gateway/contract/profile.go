package contract

import (
	"fmt"
	"strings"
)

// Profile selects which contract surface the façade exposes.
type Profile int

const (
	// ProfileSolo is a single-player puzzle: new_game, run, get_tiles.
	ProfileSolo Profile = iota
	// ProfileMatched adds the player list, stakes and opponents.
	ProfileMatched
)

// ParseProfile parses "solo" or "matched".
func ParseProfile(value string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "solo":
		return ProfileSolo, nil
	case "", "matched":
		return ProfileMatched, nil
	default:
		return 0, fmt.Errorf("unknown contract profile %q", value)
	}
}

func (p Profile) String() string {
	switch p {
	case ProfileSolo:
		return "solo"
	case ProfileMatched:
		return "matched"
	default:
		return fmt.Sprintf("profile(%d)", int(p))
	}
}

// Kind distinguishes read-only views from signed change calls.
type Kind int

const (
	KindView Kind = iota
	KindChange
)

func (k Kind) String() string {
	if k == KindChange {
		return "change"
	}
	return "view"
}

// Method describes one contract method the façade may call.
type Method struct {
	Name    string
	Kind    Kind
	Args    []string
	Deposit bool
}

// Contract method names.
const (
	MethodNewGame        = "new_game"
	MethodRun            = "run"
	MethodGetTiles       = "get_tiles"
	MethodGetPlayers     = "get_players"
	MethodAddMeToPlayers = "add_me_to_players"
	MethodIsIInPlayers   = "is_i_in_players"
	MethodSetPrice       = "set_price"
	MethodWithdrawCancel = "withdraw_and_cancel_price"
	MethodSetOpponent    = "set_opponent"
	MethodIsPlayPlayer   = "is_play_player"
	MethodGetOpponent    = "get_opponent"
)

var soloMethods = []Method{
	{Name: MethodNewGame, Kind: KindChange, Args: []string{"shuffle"}},
	{Name: MethodRun, Kind: KindChange, Args: []string{"tiles"}},
	{Name: MethodGetTiles, Kind: KindView},
}

var matchedMethods = append(append([]Method(nil), soloMethods[:2]...),
	Method{Name: MethodGetTiles, Kind: KindView, Args: []string{"account_id"}},
	Method{Name: MethodGetPlayers, Kind: KindView},
	Method{Name: MethodAddMeToPlayers, Kind: KindChange},
	Method{Name: MethodIsIInPlayers, Kind: KindView, Args: []string{"account_id"}},
	Method{Name: MethodSetPrice, Kind: KindChange, Deposit: true},
	Method{Name: MethodWithdrawCancel, Kind: KindChange},
	Method{Name: MethodSetOpponent, Kind: KindChange, Args: []string{"opponent_id"}},
	Method{Name: MethodIsPlayPlayer, Kind: KindView, Args: []string{"player_id"}},
	Method{Name: MethodGetOpponent, Kind: KindView, Args: []string{"account_id"}},
)

// Methods returns the profile's method table.
func (p Profile) Methods() []Method {
	switch p {
	case ProfileSolo:
		return append([]Method(nil), soloMethods...)
	case ProfileMatched:
		return append([]Method(nil), matchedMethods...)
	default:
		return nil
	}
}

// Lookup returns the descriptor for name within the profile.
func (p Profile) Lookup(name string) (Method, bool) {
	for _, m := range p.Methods() {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}
