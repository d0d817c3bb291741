package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func place(b *Board, c Color, cells ...[2]int) {
	for _, rc := range cells {
		b.Set(rc[0], rc[1], c)
	}
}

func TestDetectWinHorizontalFive(t *testing.T) {
	b := NewBoard(15)
	place(b, Black, [2]int{9, 5}, [2]int{9, 6}, [2]int{9, 7}, [2]int{9, 8})
	assert.Equal(t, Empty, DetectWin(b, 9, 8), "four in a row is not a win")

	place(b, Black, [2]int{9, 9})
	assert.Equal(t, Black, DetectWin(b, 9, 9))
	// the run is found from any stone in it
	assert.Equal(t, Black, DetectWin(b, 9, 5))
	assert.Equal(t, Black, DetectWin(b, 9, 7))
}

func TestDetectWinAllAxes(t *testing.T) {
	tests := []struct {
		name  string
		cells [][2]int
	}{
		{"vertical", [][2]int{{2, 4}, {3, 4}, {4, 4}, {5, 4}, {6, 4}}},
		{"diagonal", [][2]int{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}}},
		{"anti-diagonal", [][2]int{{10, 14}, {11, 13}, {12, 12}, {13, 11}, {14, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBoard(15)
			place(b, White, tt.cells...)
			last := tt.cells[len(tt.cells)-1]
			assert.Equal(t, White, DetectWin(b, last[0], last[1]))
			mid := tt.cells[2]
			assert.Equal(t, White, DetectWin(b, mid[0], mid[1]))
		})
	}
}

func TestDetectWinGapAndOpponentBreakRun(t *testing.T) {
	b := NewBoard(15)
	place(b, Black, [2]int{7, 3}, [2]int{7, 4}, [2]int{7, 6}, [2]int{7, 7})
	place(b, White, [2]int{7, 5})
	assert.Equal(t, Empty, DetectWin(b, 7, 7))
	assert.Equal(t, Empty, DetectWin(b, 7, 5))
}

func TestDetectWinOverlineCounts(t *testing.T) {
	b := NewBoard(15)
	place(b, Black, [2]int{0, 0}, [2]int{0, 1}, [2]int{0, 2}, [2]int{0, 4}, [2]int{0, 5})
	place(b, Black, [2]int{0, 3})
	assert.Equal(t, Black, DetectWin(b, 0, 3))
}

func TestDetectWinEmptyCell(t *testing.T) {
	b := NewBoard(15)
	assert.Equal(t, Empty, DetectWin(b, 4, 4))
	assert.Equal(t, Empty, DetectWin(b, -1, 20))
}

func TestDetectWinNCustomLength(t *testing.T) {
	b := NewBoard(3)
	place(b, White, [2]int{0, 2}, [2]int{1, 1}, [2]int{2, 0})
	assert.Equal(t, White, DetectWinN(b, 1, 1, 3))
	assert.Equal(t, Empty, DetectWinN(b, 1, 1, 4))
}

func rotate180(b *Board) *Board {
	n := b.Size()
	out := NewBoard(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out.Set(n-1-r, n-1-c, b.At(r, c))
		}
	}
	return out
}

func swapColors(b *Board) *Board {
	n := b.Size()
	out := NewBoard(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out.Set(r, c, b.At(r, c).Opponent())
		}
	}
	return out
}

func TestDetectWinSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n = 9
	for i := 0; i < 200; i++ {
		b := NewBoard(n)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				switch rng.Intn(3) {
				case 1:
					b.Set(r, c, Black)
				case 2:
					b.Set(r, c, White)
				}
			}
		}
		rot := rotate180(b)
		swp := swapColors(b)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				want := DetectWin(b, r, c)
				assert.Equal(t, want, DetectWin(rot, n-1-r, n-1-c), "rotation at (%d,%d)", r, c)
				assert.Equal(t, want.Opponent(), DetectWin(swp, r, c), "color swap at (%d,%d)", r, c)
			}
		}
	}
}
