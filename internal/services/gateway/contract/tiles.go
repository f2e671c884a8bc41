package contract

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/tileduel/internal/platform/errors"
)

// BoardSize is the number of cells on the board, blank included.
const BoardSize = 16

// Tiles is a 4x4 board in row-major order; 0 is the blank.
type Tiles [BoardSize]uint8

// SolvedTiles is the goal position: 1..15 followed by the blank.
var SolvedTiles = Tiles{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 0}

// Solved reports whether the board is in the goal position.
func (t Tiles) Solved() bool {
	return t == SolvedTiles
}

// MarshalJSON encodes the board as an array of numbers.
func (t Tiles) MarshalJSON() ([]byte, error) {
	cells := make([]int, BoardSize)
	for i, v := range t {
		cells[i] = int(v)
	}
	return json.Marshal(cells)
}

// UnmarshalJSON requires exactly 16 cells that fit in a byte. Which values
// form a legal board is left to the contract.
func (t *Tiles) UnmarshalJSON(data []byte) error {
	var cells []int
	if err := json.Unmarshal(data, &cells); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidTiles, "tiles must be an array of numbers", err)
	}
	if len(cells) != BoardSize {
		return apperrors.New(apperrors.CodeInvalidTiles, fmt.Sprintf("tiles must have %d cells, got %d", BoardSize, len(cells)))
	}
	for i, v := range cells {
		if v < 0 || v > 255 {
			return apperrors.New(apperrors.CodeInvalidTiles, fmt.Sprintf("tile %d is out of range: %d", i, v))
		}
		t[i] = uint8(v)
	}
	return nil
}
