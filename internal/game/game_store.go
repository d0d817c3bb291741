// internal/game/game_store.go
package game

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/piloto-life/Gomoku/internal/models"
	"github.com/sirupsen/logrus"
)

// GameStore holds the live sessions of this process in front of a Repository.
type GameStore struct {
	mu        sync.Mutex
	games     map[uuid.UUID]*Session
	repo      Repository
	boardSize int
	logger    *logrus.Logger

	// OnLoad is called once for each session entering memory, before it is returned
	// to any caller. The hub uses it to attach its event hook.
	OnLoad func(*Session)
}

func NewGameStore(repo Repository, boardSize int, logger *logrus.Logger) *GameStore {
	if boardSize <= 0 {
		boardSize = DefaultBoardSize
	}
	return &GameStore{
		games:     make(map[uuid.UUID]*Session),
		repo:      repo,
		boardSize: boardSize,
		logger:    logger,
	}
}

// BoardSize is the side length used for new sessions.
func (s *GameStore) BoardSize() int { return s.boardSize }

// CreateOnline persists and registers an active session for a matched pair.
func (s *GameStore) CreateOnline(ctx context.Context, black, white models.UserRef) (*Session, error) {
	return s.create(ctx, NewOnlineSession(uuid.New(), black, white, s.boardSize))
}

// CreateWaiting persists and registers a waiting online session with creator seated black.
func (s *GameStore) CreateWaiting(ctx context.Context, creator models.UserRef) (*Session, error) {
	g := NewSession(uuid.New(), ModeOnline, s.boardSize)
	if err := g.Seat(creator, Black); err != nil {
		return nil, err
	}
	return s.create(ctx, g)
}

func (s *GameStore) create(ctx context.Context, g *Session) (*Session, error) {
	id, err := s.repo.Create(ctx, g.Snapshot())
	if err != nil {
		return nil, &StorageError{Op: "create", Err: err}
	}
	if id != uuid.Nil {
		g.id = id
	}
	if s.OnLoad != nil {
		s.OnLoad(g)
	}

	s.mu.Lock()
	s.games[g.id] = g
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"game_id": g.id, "mode": g.mode}).Info("game created")
	return g, nil
}

// Get returns the live session, loading it from the repository when needed.
func (s *GameStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	s.mu.Unlock()
	if ok {
		return g, nil
	}

	snap, err := s.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "load", Err: err}
	}
	loaded := SessionFromSnapshot(snap, s.boardSize)
	if s.OnLoad != nil {
		s.OnLoad(loaded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another caller may have loaded it meanwhile
	if existing, ok := s.games[id]; ok {
		return existing, nil
	}
	s.games[id] = loaded
	return loaded, nil
}

// Lookup returns a session only if it is already in memory.
func (s *GameStore) Lookup(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
}

// Save writes the session's current state to the repository.
func (s *GameStore) Save(ctx context.Context, g *Session) error {
	if err := s.repo.Save(ctx, g.Snapshot()); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// Delete drops a session from memory. The repository copy is kept.
func (s *GameStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
}

// LiveGameFor returns the id of a waiting or active session userID is seated in.
func (s *GameStore) LiveGameFor(userID uuid.UUID) (uuid.UUID, bool) {
	for _, g := range s.sessions() {
		if st := g.Status(); st != StatusFinished && g.HasPlayer(userID) {
			return g.ID(), true
		}
	}
	return uuid.Nil, false
}

// List returns snapshots of in-memory sessions whose status is one of statuses,
// newest first.
func (s *GameStore) List(statuses ...Status) []Snapshot {
	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []Snapshot
	for _, g := range s.sessions() {
		snap := g.Snapshot()
		if len(want) == 0 || want[snap.Status] {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Counts returns the number of active and waiting sessions in memory.
func (s *GameStore) Counts() (active, waiting int) {
	for _, g := range s.sessions() {
		switch g.Status() {
		case StatusActive:
			active++
		case StatusWaiting:
			waiting++
		}
	}
	return active, waiting
}

// sessions copies the map values so callers never hold the store lock while
// taking a session lock.
func (s *GameStore) sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g)
	}
	return out
}
