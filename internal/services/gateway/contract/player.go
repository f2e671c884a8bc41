package contract

import (
	"encoding/json"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Player is the contract's record of one registered player.
type Player struct {
	AccountID string
	// Price is the escrowed stake in yoctoNEAR.
	Price sdkmath.Int
	// Opponent is empty until set_opponent succeeds.
	Opponent string
	IsPlay   bool
}

type wirePlayer struct {
	Price    json.RawMessage `json:"price"`
	Opponent *string         `json:"opponent"`
	IsPlay   bool            `json:"is_play"`
}

// decodePlayers reads get_players' ([account ids], [players]) tuple.
func decodePlayers(raw []byte) ([]Player, error) {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(raw, &tuple); err != nil {
		return nil, fmt.Errorf("decode players: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(tuple[0], &ids); err != nil {
		return nil, fmt.Errorf("decode player ids: %w", err)
	}
	var records []wirePlayer
	if err := json.Unmarshal(tuple[1], &records); err != nil {
		return nil, fmt.Errorf("decode player records: %w", err)
	}
	if len(ids) != len(records) {
		return nil, fmt.Errorf("decode players: %d ids for %d records", len(ids), len(records))
	}
	players := make([]Player, len(ids))
	for i, id := range ids {
		price, err := decodeU128(records[i].Price)
		if err != nil {
			return nil, fmt.Errorf("decode price of %s: %w", id, err)
		}
		players[i] = Player{AccountID: id, Price: price, IsPlay: records[i].IsPlay}
		if records[i].Opponent != nil {
			players[i].Opponent = *records[i].Opponent
		}
	}
	return players, nil
}

// decodeU128 accepts a u128 written as a JSON number or a quoted string.
func decodeU128(raw json.RawMessage) (sdkmath.Int, error) {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" || value == "null" {
		return sdkmath.ZeroInt(), nil
	}
	parsed, ok := sdkmath.NewIntFromString(value)
	if !ok || parsed.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("invalid u128 %q", value)
	}
	return parsed, nil
}
