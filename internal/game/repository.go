package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Repository persists game sessions. Load returns ErrNotFound for unknown ids.
type Repository interface {
	Create(ctx context.Context, snap Snapshot) (uuid.UUID, error)
	Load(ctx context.Context, id uuid.UUID) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// MemoryRepository keeps snapshots in process memory. It backs the server when no
// database is configured and is used by tests.
type MemoryRepository struct {
	mu    sync.Mutex
	games map[uuid.UUID]Snapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{games: make(map[uuid.UUID]Snapshot)}
}

func (r *MemoryRepository) Create(_ context.Context, snap Snapshot) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if _, exists := r.games[snap.ID]; exists {
		return uuid.Nil, fmt.Errorf("game %s already exists", snap.ID)
	}
	r.games[snap.ID] = snap
	return snap.ID, nil
}

func (r *MemoryRepository) Load(_ context.Context, id uuid.UUID) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.games[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// Save keeps the newest state: a snapshot with fewer moves than the stored one is ignored.
func (r *MemoryRepository) Save(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.games[snap.ID]
	if !ok {
		return ErrNotFound
	}
	if len(snap.Moves) < len(cur.Moves) {
		return nil
	}
	r.games[snap.ID] = snap
	return nil
}
