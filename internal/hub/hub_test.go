package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/game"
	"github.com/piloto-life/Gomoku/internal/lobby"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/piloto-life/Gomoku/internal/protocol"
	"github.com/piloto-life/Gomoku/internal/session"
	"github.com/piloto-life/Gomoku/internal/ws/wstest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	records []models.GameActionRecord
}

func (s *recordingSink) Publish(_ context.Context, rec models.GameActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.ActionType)
	}
	return out
}

type recordingResults struct {
	mu    sync.Mutex
	snaps []game.Snapshot
}

func (r *recordingResults) RecordResult(_ context.Context, snap game.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recordingResults) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

type failSaveRepo struct {
	*game.MemoryRepository
}

func (failSaveRepo) Save(context.Context, game.Snapshot) error {
	return errors.New("connection refused")
}

type fixture struct {
	*Hub
	sink    *recordingSink
	results *recordingResults
}

func newFixture(t *testing.T, repo game.Repository, opts Options) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if repo == nil {
		repo = game.NewMemoryRepository()
	}
	f := &fixture{sink: &recordingSink{}, results: &recordingResults{}}
	f.Hub = New(game.NewGameStore(repo, game.DefaultBoardSize, logger), f.sink, f.results, opts, logger)
	return f
}

func user(name string) models.UserRef {
	return models.UserRef{ID: uuid.New(), Username: name, Rating: models.DefaultRating}
}

// matched queues two users and returns the session created for them.
func (f *fixture) matched(t *testing.T, black, white models.UserRef) *game.Session {
	t.Helper()
	ctx := context.Background()
	cb := wstest.New(black.ID)
	cw := wstest.New(white.ID)
	f.ConnectLobby(black, cb)
	f.ConnectLobby(white, cw)
	f.JoinQueue(ctx, cb)
	f.JoinQueue(ctx, cw)

	start := cb.Last(protocol.TypeGameStart)
	require.NotNil(t, start)
	id, err := uuid.Parse(start["game_id"].(string))
	require.NoError(t, err)
	s, err := f.Games.Get(ctx, id)
	require.NoError(t, err)
	return s
}

func (f *fixture) enter(t *testing.T, s *game.Session, u models.UserRef) *wstest.Conn {
	t.Helper()
	authorized, err := f.AuthorizeGame(context.Background(), s.ID(), u.ID)
	require.NoError(t, err)
	c := wstest.NewGame(u.ID, s.ID())
	f.JoinGameRoom(authorized, u, c)
	return c
}

func TestMatchedGamePlaysToFiveInARow(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)

	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)
	assert.Equal(t, []string{protocol.TypeConnected, protocol.TypeGameState}, ca.Types()[:2])

	for i := 0; i < 4; i++ {
		require.NoError(t, f.HandleMove(ctx, ca, 7, i))
		require.NoError(t, f.HandleMove(ctx, cb, 8, i))
	}
	require.NoError(t, f.HandleMove(ctx, ca, 7, 4))

	assert.Equal(t, 9, ca.Count(protocol.TypePlayerMove))
	assert.Equal(t, 9, cb.Count(protocol.TypePlayerMove))

	end := cb.Last(protocol.TypeGameEnd)
	require.NotNil(t, end)
	assert.Equal(t, "black", end["winner"])
	assert.Equal(t, alice.ID.String(), end["winner_id"])
	assert.Equal(t, game.ReasonFive, end["reason"])

	last := ca.Last(protocol.TypePlayerMove)
	assert.Nil(t, last["move"].(map[string]any)["next_player"])

	types := f.sink.types()
	assert.Equal(t, models.ActionGameStart, types[0])
	assert.Equal(t, models.ActionGameEnd, types[len(types)-1])
	assert.Equal(t, 1, f.results.count())

	// finished games drop out of memory once the room is empty
	f.HandleDeadConnection(ca)
	f.HandleDeadConnection(cb)
	_, ok := f.Games.Lookup(s.ID())
	assert.False(t, ok)
}

func TestInvalidMoveOnlyReachesSender(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)

	err := f.HandleMove(ctx, cb, 0, 0)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
	errMsg := cb.Last(protocol.TypeError)
	require.NotNil(t, errMsg)
	assert.Equal(t, "not_your_turn", errMsg["code"])
	assert.Zero(t, ca.Count(protocol.TypeError))
	assert.Zero(t, ca.Count(protocol.TypePlayerMove))

	err = f.HandleMove(ctx, ca, 99, 0)
	assert.ErrorIs(t, err, game.ErrOutOfBounds)
	closed, _ := ca.Closed()
	assert.False(t, closed, "invalid moves never disconnect")
}

func TestAuthorizeGame(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)

	_, err := f.AuthorizeGame(ctx, s.ID(), uuid.New())
	assert.ErrorIs(t, err, game.ErrNotAPlayer)
	_, err = f.AuthorizeGame(ctx, uuid.New(), alice.ID)
	assert.ErrorIs(t, err, game.ErrNotFound)
}

func TestPlayersInActiveGameCannotQueue(t *testing.T) {
	f := newFixture(t, nil, Options{})
	alice, bob := user("alice"), user("bob")
	f.matched(t, alice, bob)

	again := wstest.New(alice.ID)
	f.ConnectLobby(alice, again)
	f.JoinQueue(context.Background(), again)
	assert.False(t, f.Lobby.InQueue(alice.ID))
	assert.Equal(t, "already_playing", again.Last(protocol.TypeError)["code"])
}

func TestLobbyDisconnectRemovesPresenceAndQueue(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	ca := wstest.New(alice.ID)
	f.ConnectLobby(alice, ca)
	f.JoinQueue(ctx, ca)

	f.HandleDeadConnection(ca)
	_, ok := f.Lobby.Lookup(alice.ID)
	assert.False(t, ok)
	assert.False(t, f.Lobby.InQueue(alice.ID))
	_, ok = f.LobbySessions.Get(alice.ID)
	assert.False(t, ok)

	cb := wstest.New(bob.ID)
	f.ConnectLobby(bob, cb)
	f.JoinQueue(ctx, cb)
	assert.Zero(t, cb.Count(protocol.TypeGameStart))
	assert.Equal(t, 1, f.Lobby.QueueLen())
}

func TestLobbyReconnectKeepsQueuePlace(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice := user("alice")
	first := wstest.New(alice.ID)
	f.ConnectLobby(alice, first)
	f.JoinQueue(ctx, first)

	second := wstest.New(alice.ID)
	f.ConnectLobby(alice, second)

	closed, code := first.Closed()
	assert.True(t, closed)
	assert.Equal(t, session.ReplacedCode, code)
	assert.Equal(t, 1, first.Count(protocol.TypeSessionReplaced))

	// the replaced handler unwinds late
	f.HandleDeadConnection(first)
	assert.True(t, f.Lobby.InQueue(alice.ID))
	cur, ok := f.LobbySessions.Get(alice.ID)
	require.True(t, ok)
	assert.Equal(t, second.ID(), cur.ID())
}

func TestGameDisconnectNotifiesOpponent(t *testing.T) {
	f := newFixture(t, nil, Options{})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)

	f.HandleDeadConnection(ca)
	f.HandleDeadConnection(ca)

	assert.Equal(t, 1, cb.Count(protocol.TypePlayerDisconnected))
	assert.Equal(t, alice.ID.String(), cb.Last(protocol.TypePlayerDisconnected)["user_id"])
	assert.Equal(t, game.StatusActive, s.Status(), "no forfeit by default")
	assert.Equal(t, 1, f.Rooms.Size(s.ID()))
}

func TestForfeitOnDisconnect(t *testing.T) {
	f := newFixture(t, nil, Options{ForfeitOnDisconnect: true})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)

	f.HandleDeadConnection(ca)

	end := cb.Last(protocol.TypeGameEnd)
	require.NotNil(t, end)
	assert.Equal(t, "white", end["winner"])
	assert.Equal(t, game.ReasonForfeit, end["reason"])
	assert.Equal(t, game.StatusFinished, s.Status())
	assert.Equal(t, 1, f.results.count())
}

func TestGameReconnectReplacesRoomMember(t *testing.T) {
	f := newFixture(t, nil, Options{})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	first := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)
	second := f.enter(t, s, alice)

	assert.Equal(t, 2, f.Rooms.Size(s.ID()))
	f.HandleDeadConnection(first)
	assert.Zero(t, cb.Count(protocol.TypePlayerDisconnected), "replaced connection is not a disconnect")

	require.NoError(t, f.HandleMove(context.Background(), second, 3, 3))
	assert.Zero(t, first.Count(protocol.TypePlayerMove))
	assert.Equal(t, 1, second.Count(protocol.TypePlayerMove))
}

func TestFailedRoomSendIsCleanedUp(t *testing.T) {
	f := newFixture(t, nil, Options{})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)
	cb.Fail()

	require.NoError(t, f.HandleMove(context.Background(), ca, 0, 0))

	assert.Eventually(t, func() bool {
		_, ok := f.GameSessions.Get(bob.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.Rooms.Size(s.ID()))
	assert.Eventually(t, func() bool {
		return ca.Count(protocol.TypePlayerDisconnected) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStorageFailureKeepsPlayingFromMemory(t *testing.T) {
	f := newFixture(t, failSaveRepo{game.NewMemoryRepository()}, Options{})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)

	require.NoError(t, f.HandleMove(context.Background(), ca, 5, 5))
	assert.Equal(t, 1, cb.Count(protocol.TypePlayerMove))
	assert.Equal(t, game.White, s.Snapshot().CurrentTurn)
	assert.Contains(t, f.sink.types(), models.ActionStorageError)
}

func TestWaitingGameJoin(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	ca := wstest.New(alice.ID)
	cb := wstest.New(bob.ID)
	f.ConnectLobby(alice, ca)
	f.ConnectLobby(bob, cb)
	f.JoinQueue(ctx, cb)

	s, err := f.CreateWaitingGame(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, game.StatusWaiting, s.Status())
	assert.Equal(t, 1, f.Stats().WaitingGames)

	joined, color, err := f.JoinWaitingGame(ctx, s.ID(), bob)
	require.NoError(t, err)
	assert.Equal(t, game.White, color)
	assert.Equal(t, game.StatusActive, joined.Status())
	assert.False(t, f.Lobby.InQueue(bob.ID))
	assert.Equal(t, "black", ca.Last(protocol.TypeGameStart)["your_color"])
	assert.Equal(t, "white", cb.Last(protocol.TypeGameStart)["your_color"])

	_, _, err = f.JoinWaitingGame(ctx, s.ID(), user("carol"))
	assert.ErrorIs(t, err, game.ErrSeatTaken)

	_, err = f.CreateWaitingGame(ctx, alice)
	assert.ErrorIs(t, err, lobby.ErrAlreadyPlaying)

	stats := f.Stats()
	assert.Equal(t, 1, stats.ActiveGames)
	assert.Equal(t, 2, stats.OnlinePlayers)
}

func TestChatRelays(t *testing.T) {
	f := newFixture(t, nil, Options{})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)

	la, _ := f.LobbySessions.Get(alice.ID)
	lb, _ := f.LobbySessions.Get(bob.ID)
	f.LobbyChat(la, "hello lobby")
	assert.Equal(t, "hello lobby", lb.(*wstest.Conn).Last(protocol.TypeChatMessage)["message"])

	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)
	f.GameChat(ca, alice, "gg")
	assert.Equal(t, "gg", cb.Last(protocol.TypeChatMessage)["message"])
	assert.Equal(t, "alice", cb.Last(protocol.TypeChatMessage)["username"])
}

func TestWaitingGameCreatorCannotBePaired(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	ca := wstest.New(alice.ID)
	f.ConnectLobby(alice, ca)
	f.JoinQueue(ctx, ca)
	require.True(t, f.Lobby.InQueue(alice.ID))

	s, err := f.CreateWaitingGame(ctx, alice)
	require.NoError(t, err)
	assert.False(t, f.Lobby.InQueue(alice.ID))

	f.JoinQueue(ctx, ca)
	assert.False(t, f.Lobby.InQueue(alice.ID))
	assert.Equal(t, "already_playing", ca.Last(protocol.TypeError)["code"])

	cb := wstest.New(bob.ID)
	f.ConnectLobby(bob, cb)
	f.JoinQueue(ctx, cb)
	assert.Zero(t, cb.Count(protocol.TypeGameStart), "the creator is not available for pairing")
	assert.True(t, f.Lobby.InQueue(bob.ID))

	_, _, err = f.JoinWaitingGame(ctx, s.ID(), alice)
	assert.ErrorIs(t, err, lobby.ErrAlreadyPlaying)

	_, color, err := f.JoinWaitingGame(ctx, s.ID(), bob)
	require.NoError(t, err)
	assert.Equal(t, game.White, color)
	assert.Zero(t, f.Lobby.QueueLen(), "both seats leave the queue")
	assert.Equal(t, 1, cb.Count(protocol.TypeGameStart))
	assert.Equal(t, 1, ca.Count(protocol.TypeGameStart))
}

func TestReplacedLobbyConnectionIsIgnored(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	first := wstest.New(alice.ID)
	f.ConnectLobby(alice, first)
	second := wstest.New(alice.ID)
	f.ConnectLobby(alice, second)
	cb := wstest.New(bob.ID)
	f.ConnectLobby(bob, cb)

	f.JoinQueue(ctx, first)
	assert.False(t, f.Lobby.InQueue(alice.ID))
	f.LobbyChat(first, "ghost")
	assert.Zero(t, cb.Count(protocol.TypeChatMessage))

	f.JoinQueue(ctx, second)
	assert.True(t, f.Lobby.InQueue(alice.ID))
	f.LobbyChat(second, "hi")
	assert.Equal(t, 1, cb.Count(protocol.TypeChatMessage))
}

func TestEmptyRoomAbandonsActiveGame(t *testing.T) {
	f := newFixture(t, nil, Options{AbandonAfter: 100 * time.Millisecond})
	ctx := context.Background()
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)
	assert.Equal(t, 1, f.Stats().OpenRooms)
	assert.Equal(t, 2, f.Stats().InGamePlayers)

	f.HandleDeadConnection(ca)
	f.HandleDeadConnection(cb)

	assert.Eventually(t, func() bool {
		_, ok := f.Games.Lookup(s.ID())
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, game.StatusFinished, snap.Status)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, game.ReasonAbandoned, snap.Outcome.Reason)
	assert.Zero(t, f.results.count(), "abandoned games are not rated")
	assert.Contains(t, f.sink.types(), models.ActionGameEnd)

	// both players are free to queue again
	for _, u := range []models.UserRef{alice, bob} {
		lc, ok := f.LobbySessions.Get(u.ID)
		require.True(t, ok)
		f.JoinQueue(ctx, lc)
	}
	assert.Zero(t, f.Lobby.QueueLen(), "the pair was matched again")
	assert.Equal(t, 1, f.Stats().ActiveGames)
}

func TestReturningPlayerKeepsGameAlive(t *testing.T) {
	f := newFixture(t, nil, Options{AbandonAfter: 100 * time.Millisecond})
	alice, bob := user("alice"), user("bob")
	s := f.matched(t, alice, bob)
	ca := f.enter(t, s, alice)
	cb := f.enter(t, s, bob)

	f.HandleDeadConnection(ca)
	f.HandleDeadConnection(cb)
	f.enter(t, s, alice)

	assert.Never(t, func() bool {
		return s.Status() != game.StatusActive
	}, 300*time.Millisecond, 20*time.Millisecond)
}

func TestUnattendedGamesAreAbandoned(t *testing.T) {
	f := newFixture(t, nil, Options{AbandonAfter: 50 * time.Millisecond})
	ctx := context.Background()
	alice, bob, carol := user("alice"), user("bob"), user("carol")

	matched := f.matched(t, alice, bob)
	waiting, err := f.CreateWaitingGame(ctx, carol)
	require.NoError(t, err)

	for _, s := range []*game.Session{matched, waiting} {
		assert.Eventually(t, func() bool {
			return s.Status() == game.StatusFinished
		}, 2*time.Second, 10*time.Millisecond)
	}
	assert.Eventually(t, func() bool {
		_, ok := f.Games.LiveGameFor(carol.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)

	cc := wstest.New(carol.ID)
	f.ConnectLobby(carol, cc)
	f.JoinQueue(ctx, cc)
	assert.True(t, f.Lobby.InQueue(carol.ID))
}
