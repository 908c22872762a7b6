package memory

import (
	"context"
	"sync"
	"time"

	"github.com/beamlink/relay-server/internal/store"
)

// MemoryStore implements store.RoomStore with an in-process map. It is the
// default backend when no database path is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*store.Room
}

// New creates an empty in-memory room store.
func New() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*store.Room)}
}

// Get retrieves a room by code.
func (s *MemoryStore) Get(_ context.Context, code string) (*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRoom(room), nil
}

// Upsert writes a room record, replacing any existing one with the same code.
func (s *MemoryStore) Upsert(_ context.Context, room *store.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms[room.Code] = cloneRoom(room)
	return nil
}

// Delete removes a room record. Absent rooms are ignored.
func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, code)
	return nil
}

// AddRecipient inserts a recipient key into an existing room. The key insert
// happens under the store lock, so concurrent joins cannot lose an add.
func (s *MemoryStore) AddRecipient(_ context.Context, code, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[code]
	if !ok {
		return store.ErrNotFound
	}
	if _, exists := room.Recipients[connID]; !exists {
		room.Recipients[connID] = []int{}
	}
	return nil
}

// FindBySender returns every room owned by the given connection.
func (s *MemoryStore) FindBySender(_ context.Context, connID string) ([]*store.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []*store.Room
	for _, room := range s.rooms {
		if room.Sender == connID {
			owned = append(owned, cloneRoom(room))
		}
	}
	return owned, nil
}

// RemoveRecipientEverywhere deletes the recipient key from every room.
func (s *MemoryStore) RemoveRecipientEverywhere(_ context.Context, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, room := range s.rooms {
		delete(room.Recipients, connID)
	}
	return nil
}

// ExpiredCodes returns codes of rooms created before cutoff.
func (s *MemoryStore) ExpiredCodes(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var codes []string
	for code, room := range s.rooms {
		if room.CreatedAt.Before(cutoff) {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// cloneRoom copies a record so callers never alias store-internal state.
func cloneRoom(room *store.Room) *store.Room {
	clone := &store.Room{
		Code:       room.Code,
		Files:      make([]store.FileInfo, len(room.Files)),
		Sender:     room.Sender,
		Recipients: make(map[string][]int, len(room.Recipients)),
		CreatedAt:  room.CreatedAt,
	}
	copy(clone.Files, room.Files)
	for id, chunks := range room.Recipients {
		c := make([]int, len(chunks))
		copy(c, chunks)
		clone.Recipients[id] = c
	}
	return clone
}
