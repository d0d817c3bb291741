// internal/game/game_test.go
package game

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster collects session events instead of sending them to a room.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (mb *mockBroadcaster) emit(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.events = append(mb.events, ev)
}

func (mb *mockBroadcaster) types() []EventType {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	out := make([]EventType, len(mb.events))
	for i, ev := range mb.events {
		out[i] = ev.Type
	}
	return out
}

func testPlayer(name string) models.UserRef {
	return models.UserRef{ID: uuid.New(), Username: name, Rating: models.DefaultRating}
}

// setupTestGame returns an active online session of the given size and its players.
func setupTestGame(t *testing.T, size int) (*Session, models.UserRef, models.UserRef, *mockBroadcaster) {
	t.Helper()
	black, white := testPlayer("alice"), testPlayer("bob")
	s := NewOnlineSession(uuid.New(), black, white, size)
	mb := &mockBroadcaster{}
	s.Emit = mb.emit
	require.Equal(t, StatusActive, s.Status())
	return s, black, white, mb
}

func TestApplyMoveAlternatesTurns(t *testing.T) {
	s, black, white, mb := setupTestGame(t, 15)

	res, err := s.ApplyMove(black.ID, 7, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Move.Seq)
	assert.Equal(t, Black, res.Move.Color)
	assert.Equal(t, White, res.Snapshot.CurrentTurn)
	assert.Nil(t, res.Outcome)

	res, err = s.ApplyMove(white.ID, 7, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Move.Seq)
	assert.Equal(t, Black, res.Snapshot.CurrentTurn)
	assert.Equal(t, []EventType{EventMove, EventMove}, mb.types())
}

func TestApplyMoveNotYourTurnLeavesBoardUnchanged(t *testing.T) {
	s, _, white, mb := setupTestGame(t, 15)
	before := s.Snapshot()

	_, err := s.ApplyMove(white.ID, 3, 3)
	assert.ErrorIs(t, err, ErrNotYourTurn)

	after := s.Snapshot()
	assert.Equal(t, before.Board.Rows(), after.Board.Rows())
	assert.Empty(t, after.Moves)
	assert.Equal(t, Black, after.CurrentTurn)
	assert.Empty(t, mb.types())
}

func TestApplyMoveValidationOrder(t *testing.T) {
	s, black, white, _ := setupTestGame(t, 15)
	_, err := s.ApplyMove(black.ID, 0, 0)
	require.NoError(t, err)

	// occupied is reported before turn order
	_, err = s.ApplyMove(black.ID, 0, 0)
	assert.ErrorIs(t, err, ErrCellOccupied)

	// bounds are reported before occupancy and turn
	_, err = s.ApplyMove(black.ID, 15, 0)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = s.ApplyMove(white.ID, -1, 3)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, err = s.ApplyMove(uuid.New(), 1, 1)
	assert.ErrorIs(t, err, ErrNotAPlayer)
	assert.True(t, IsInvalidMove(err))
}

func TestApplyMoveWinFinishesGame(t *testing.T) {
	s, black, white, mb := setupTestGame(t, 15)
	for i := 0; i < 4; i++ {
		_, err := s.ApplyMove(black.ID, 9, 5+i)
		require.NoError(t, err)
		_, err = s.ApplyMove(white.ID, 0, i)
		require.NoError(t, err)
	}
	res, err := s.ApplyMove(black.ID, 9, 9)
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, Black, res.Outcome.Winner)
	assert.Equal(t, ReasonFive, res.Outcome.Reason)
	assert.Equal(t, StatusFinished, s.Status())

	types := mb.types()
	assert.Equal(t, []EventType{EventMove, EventEnd}, types[len(types)-2:])

	// finished is terminal
	_, err = s.ApplyMove(white.ID, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApplyMoveDrawOnFullBoard(t *testing.T) {
	s, black, white, _ := setupTestGame(t, 2)
	players := map[Color]uuid.UUID{Black: black.ID, White: white.ID}
	cells := [][2]int{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

	var res *MoveResult
	var err error
	turn := Black
	for _, c := range cells {
		res, err = s.ApplyMove(players[turn], c[0], c[1])
		require.NoError(t, err)
		turn = turn.Opponent()
	}
	require.NotNil(t, res.Outcome)
	assert.True(t, res.Outcome.Draw)
	assert.Equal(t, Empty, res.Outcome.Winner)
	assert.Equal(t, StatusFinished, s.Status())
}

func TestCellsChangeExactlyOnce(t *testing.T) {
	s, black, white, _ := setupTestGame(t, 15)
	players := map[Color]uuid.UUID{Black: black.ID, White: white.ID}
	seen := make(map[[2]int]Color)

	turn := Black
	for i := 0; i < 40; i++ {
		row, col := (i*7)%15, (i*3)%15
		res, err := s.ApplyMove(players[turn], row, col)
		if err != nil {
			assert.ErrorIs(t, err, ErrCellOccupied)
			continue
		}
		key := [2]int{row, col}
		_, dup := seen[key]
		assert.False(t, dup, "cell %v written twice", key)
		seen[key] = turn
		turn = turn.Opponent()
		if res.Outcome != nil {
			break
		}
	}
	snap := s.Snapshot()
	for key, c := range seen {
		assert.Equal(t, c, snap.Board.At(key[0], key[1]))
	}
}

func TestConcurrentMovesAreLinearized(t *testing.T) {
	s, black, white, _ := setupTestGame(t, 15)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var rejected []error
	start := make(chan struct{})
	for i, id := range []uuid.UUID{black.ID, white.ID} {
		for k := 0; k < 8; k++ {
			wg.Add(1)
			go func(id uuid.UUID, row, col int) {
				defer wg.Done()
				<-start
				if _, err := s.ApplyMove(id, row, col); err != nil {
					mu.Lock()
					rejected = append(rejected, err)
					mu.Unlock()
				}
			}(id, i*2, k*2)
		}
	}
	close(start)
	wg.Wait()

	snap := s.Snapshot()
	require.NotEmpty(t, snap.Moves)
	assert.Len(t, rejected, 16-len(snap.Moves))
	for _, err := range rejected {
		assert.ErrorIs(t, err, ErrNotYourTurn)
	}
	stones := 0
	for r := 0; r < 15; r++ {
		for c := 0; c < 15; c++ {
			if snap.Board.At(r, c) != Empty {
				stones++
			}
		}
	}
	assert.Equal(t, len(snap.Moves), stones)
	for i, mv := range snap.Moves {
		assert.Equal(t, i+1, mv.Seq)
		if i%2 == 0 {
			assert.Equal(t, Black, mv.Color)
		} else {
			assert.Equal(t, White, mv.Color)
		}
	}
}

func TestOutOfTurnRaceRejectsWaitingPlayer(t *testing.T) {
	s, black, white, _ := setupTestGame(t, 15)
	_, err := s.ApplyMove(white.ID, 4, 5)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = s.ApplyMove(black.ID, 4, 4)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Len(t, snap.Moves, 1)
	assert.Equal(t, Black, snap.Board.At(4, 4))
	assert.Equal(t, Empty, snap.Board.At(4, 5))
}

func TestJoinWaitingSession(t *testing.T) {
	creator, joiner := testPlayer("carol"), testPlayer("dave")
	s := NewSession(uuid.New(), ModeOnline, 15)
	mb := &mockBroadcaster{}
	s.Emit = mb.emit
	require.NoError(t, s.Seat(creator, Black))

	_, err := s.Join(creator)
	assert.ErrorIs(t, err, ErrAlreadySeated)
	assert.Equal(t, StatusWaiting, s.Status())

	// moves are rejected until the second seat is filled
	_, err = s.ApplyMove(creator.ID, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidState)

	color, err := s.Join(joiner)
	require.NoError(t, err)
	assert.Equal(t, White, color)
	assert.Equal(t, StatusActive, s.Status())
	assert.Equal(t, []EventType{EventJoin}, mb.types())

	_, err = s.Join(testPlayer("eve"))
	assert.ErrorIs(t, err, ErrSeatTaken)
}

func TestForfeit(t *testing.T) {
	s, black, _, mb := setupTestGame(t, 15)

	_, err := s.Forfeit(uuid.New())
	assert.ErrorIs(t, err, ErrNotAPlayer)

	out, err := s.Forfeit(black.ID)
	require.NoError(t, err)
	assert.Equal(t, White, out.Winner)
	assert.Equal(t, ReasonForfeit, out.Reason)
	assert.Equal(t, []EventType{EventEnd}, mb.types())

	_, err = s.Forfeit(black.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAbandonEndsWithoutWinner(t *testing.T) {
	s, black, _, mb := setupTestGame(t, 15)
	_, err := s.ApplyMove(black.ID, 7, 7)
	require.NoError(t, err)

	out, err := s.Abandon()
	require.NoError(t, err)
	assert.Equal(t, Empty, out.Winner)
	assert.False(t, out.Draw)
	assert.Equal(t, ReasonAbandoned, out.Reason)
	assert.Equal(t, StatusFinished, s.Status())
	assert.Equal(t, []EventType{EventMove, EventEnd}, mb.types())

	_, err = s.Abandon()
	assert.ErrorIs(t, err, ErrInvalidState)

	waiting := NewSession(uuid.New(), ModeOnline, 15)
	require.NoError(t, waiting.Seat(black, Black))
	_, err = waiting.Abandon()
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, waiting.Status())
	_, err = waiting.Join(testPlayer("late"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestLocalModeSameUserPlaysBothColors(t *testing.T) {
	u := testPlayer("solo")
	s := NewSession(uuid.New(), ModeLocal, 15)
	require.NoError(t, s.Seat(u, Black))
	_, err := s.Join(u)
	assert.ErrorIs(t, err, ErrAlreadySeated)

	// seat the same user on white directly through a snapshot round trip
	snap := s.Snapshot()
	snap.Players.White = &u
	snap.Status = StatusActive
	local := SessionFromSnapshot(snap, 15)

	res, err := local.ApplyMove(u.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Black, res.Move.Color)
	res, err = local.ApplyMove(u.ID, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, White, res.Move.Color)
}

func TestSnapshotIsDetached(t *testing.T) {
	s, black, _, _ := setupTestGame(t, 15)
	snap := s.Snapshot()
	snap.Board.Set(1, 1, White)
	snap.Players.Black.Username = "mallory"

	_, err := s.ApplyMove(black.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Players().Black.Username)
}
