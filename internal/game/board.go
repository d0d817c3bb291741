// internal/game/board.go
package game

import (
	"encoding/json"
	"fmt"
)

// DefaultBoardSize matches the 15x15 board most clients render.
const DefaultBoardSize = 15

// Color is the content of a board cell, and also the color a player is seated as.
type Color uint8

const (
	Empty Color = iota
	Black
	White
)

// String returns the wire form of the color.
func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Opponent returns the other stone color. Empty has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

// ParseColor converts the wire form back into a Color.
func ParseColor(s string) (Color, error) {
	switch s {
	case "black":
		return Black, nil
	case "white":
		return White, nil
	case "", "empty":
		return Empty, nil
	}
	return Empty, fmt.Errorf("unknown color %q", s)
}

func (c Color) MarshalJSON() ([]byte, error) {
	if c == Empty {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

func (c *Color) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Empty
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Board is an N x N grid stored row-major.
type Board struct {
	size  int
	cells []Color
}

// NewBoard returns an empty size x size board.
func NewBoard(size int) *Board {
	if size <= 0 {
		size = DefaultBoardSize
	}
	return &Board{size: size, cells: make([]Color, size*size)}
}

// Size is the length of one side of the board.
func (b *Board) Size() int { return b.size }

// InBounds reports whether (row, col) addresses a cell on the board.
func (b *Board) InBounds(row, col int) bool {
	return row >= 0 && row < b.size && col >= 0 && col < b.size
}

// At returns the cell content, or Empty for out-of-bounds coordinates.
func (b *Board) At(row, col int) Color {
	if !b.InBounds(row, col) {
		return Empty
	}
	return b.cells[row*b.size+col]
}

// Set places a stone. Callers validate bounds and occupancy first.
func (b *Board) Set(row, col int, c Color) {
	b.cells[row*b.size+col] = c
}

// Full reports whether no empty cell remains.
func (b *Board) Full() bool {
	for _, c := range b.cells {
		if c == Empty {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (b *Board) Clone() *Board {
	cp := &Board{size: b.size, cells: make([]Color, len(b.cells))}
	copy(cp.cells, b.cells)
	return cp
}

// Rows renders the board as a grid of wire colors ("black", "white" or null).
func (b *Board) Rows() [][]Color {
	rows := make([][]Color, b.size)
	for r := 0; r < b.size; r++ {
		row := make([]Color, b.size)
		copy(row, b.cells[r*b.size:(r+1)*b.size])
		rows[r] = row
	}
	return rows
}

// BoardFromRows rebuilds a board from its grid form, as loaded from storage.
func BoardFromRows(rows [][]Color) (*Board, error) {
	b := NewBoard(len(rows))
	for r, row := range rows {
		if len(row) != len(rows) {
			return nil, fmt.Errorf("board row %d has %d cells, want %d", r, len(row), len(rows))
		}
		copy(b.cells[r*b.size:], row)
	}
	return b, nil
}

func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Rows())
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]Color
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	parsed, err := BoardFromRows(rows)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}
