package contractstub

import (
	"encoding/json"
	"testing"

	sdkmath "cosmossdk.io/math"

	"github.com/louisbranch/tileduel/internal/services/gateway/contract"
)

func mustCall(t *testing.T, c *Contract, signer, method, args string, deposit sdkmath.Int) {
	t.Helper()
	if _, err := c.Call(signer, method, []byte(args), deposit); err != nil {
		t.Fatalf("%s by %s: %v", method, signer, err)
	}
}

func TestCheckMove(t *testing.T) {
	start := contract.Tiles{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 0, 15}
	tests := []struct {
		name  string
		after contract.Tiles
		ok    bool
	}{
		{"slide left neighbour", contract.Tiles{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 0, 14, 15}, true},
		{"slide right neighbour", contract.SolvedTiles, true},
		{"slide from above", contract.Tiles{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 0, 12, 13, 14, 11, 15}, true},
		{"no move", start, false},
		{"swap two tiles", contract.Tiles{2, 1, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 0, 15}, false},
		{"jump", contract.Tiles{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0, 14, 13, 15}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkMove(start, tt.after)
			if (err == nil) != tt.ok {
				t.Fatalf("checkMove err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestRowWrapIsNotAMove(t *testing.T) {
	start := contract.Tiles{1, 2, 3, 0, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 4}
	wrapped := contract.Tiles{1, 2, 3, 5, 0, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 4}
	if err := checkMove(start, wrapped); err == nil {
		t.Fatal("moving across a row edge must fail")
	}
}

func TestMatchedRules(t *testing.T) {
	c := New()
	var refunded sdkmath.Int
	c.Refund = func(_ string, amount sdkmath.Int) { refunded = amount }
	zero := sdkmath.ZeroInt()

	if _, err := c.View(contract.MethodGetPlayers, []byte(`{}`)); err == nil {
		t.Fatal("expected no players error")
	}
	mustCall(t, c, "alice.testnet", contract.MethodAddMeToPlayers, `{}`, zero)
	if _, err := c.Call("alice.testnet", contract.MethodAddMeToPlayers, []byte(`{}`), zero); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if _, err := c.Call("alice.testnet", contract.MethodSetOpponent, []byte(`{"opponent_id":"bob.testnet"}`), zero); err == nil {
		t.Fatal("expected unknown opponent error")
	}
	mustCall(t, c, "bob.testnet", contract.MethodAddMeToPlayers, `{}`, zero)
	mustCall(t, c, "alice.testnet", contract.MethodSetOpponent, `{"opponent_id":"bob.testnet"}`, zero)

	stake := sdkmath.NewIntWithDecimal(2, 24)
	mustCall(t, c, "alice.testnet", contract.MethodSetPrice, `{}`, stake)
	if _, err := c.Call("alice.testnet", contract.MethodSetPrice, []byte(`{}`), stake); err == nil {
		t.Fatal("expected second bet error")
	}

	raw, err := c.View(contract.MethodGetPlayers, []byte(`{}`))
	if err != nil {
		t.Fatalf("get players: %v", err)
	}
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(tuple[0]) != `["alice.testnet","bob.testnet"]` {
		t.Fatalf("ids = %s", tuple[0])
	}

	mustCall(t, c, "alice.testnet", contract.MethodWithdrawCancel, `{}`, zero)
	if !refunded.Equal(stake) {
		t.Fatalf("refunded = %v", refunded)
	}
	if _, err := c.Call("alice.testnet", contract.MethodWithdrawCancel, []byte(`{}`), zero); err == nil {
		t.Fatal("expected no bid error")
	}
	playing, err := c.View(contract.MethodIsPlayPlayer, []byte(`{"player_id":"alice.testnet"}`))
	if err != nil || string(playing) != "false" {
		t.Fatalf("is_play_player = %s, %v", playing, err)
	}
}

func TestNewGameVariants(t *testing.T) {
	c := New()
	zero := sdkmath.ZeroInt()
	mustCall(t, c, "alice.testnet", contract.MethodNewGame, `{"shuffle":true}`, zero)
	raw, err := c.View(contract.MethodGetTiles, []byte(`{}`))
	if err != nil {
		t.Fatalf("get tiles: %v", err)
	}
	var tiles contract.Tiles
	if err := json.Unmarshal(raw, &tiles); err != nil || tiles != ShuffledTiles {
		t.Fatalf("tiles = %v, %v", tiles, err)
	}

	unsolvable := `{"shuffle":[2,1,3,4,5,6,7,8,9,10,11,12,13,14,15,0]}`
	if _, err := c.Call("alice.testnet", contract.MethodNewGame, []byte(unsolvable), zero); err == nil {
		t.Fatal("expected unsolvable permutation error")
	}
	repeated := `{"shuffle":[1,1,3,4,5,6,7,8,9,10,11,12,13,14,15,0]}`
	if _, err := c.Call("alice.testnet", contract.MethodNewGame, []byte(repeated), zero); err == nil {
		t.Fatal("expected repetition error")
	}
}
