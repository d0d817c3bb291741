// internal/game/win.go
package game

// WinLength is the contiguous run of one color that ends the game.
const WinLength = 5

// axes are the four line directions through a cell; each is walked forward and backward.
var axes = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal
	{1, -1}, // anti-diagonal
}

// DetectWin reports the color that completed a line of WinLength through the stone
// at (row, col), or Empty when the stone did not win. Only lines through the given
// cell are inspected.
func DetectWin(b *Board, row, col int) Color {
	return DetectWinN(b, row, col, WinLength)
}

// DetectWinN is DetectWin with a configurable run length.
func DetectWinN(b *Board, row, col, length int) Color {
	color := b.At(row, col)
	if color == Empty {
		return Empty
	}
	for _, ax := range axes {
		total := 1 + countRun(b, row, col, ax[0], ax[1], color) + countRun(b, row, col, -ax[0], -ax[1], color)
		if total >= length {
			return color
		}
	}
	return Empty
}

// countRun counts stones of color starting one step away from (row, col) in direction (dr, dc).
func countRun(b *Board, row, col, dr, dc int, color Color) int {
	n := 0
	r, c := row+dr, col+dc
	for b.InBounds(r, c) && b.At(r, c) == color {
		n++
		r += dr
		c += dc
	}
	return n
}
