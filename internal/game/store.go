package game

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the authoritative collection of active rooms, keyed by code.
// Rooms are never removed automatically; a disconnected host can always
// reclaim a room later. DELETE is exposed to operators only.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewStore creates an empty room store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// Create allocates a room with a fresh unique code and a host secret for
// the given host name, and registers it.
func (s *Store) Create(hostName string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := newRoomCode()
	for s.rooms[code] != nil {
		code = newRoomCode()
	}

	r := &Room{
		Code:       code,
		HostName:   hostName,
		HostSecret: uuid.NewString(),
		SleepAt:    SleepAtRomeo,
	}
	s.rooms[code] = r
	return r
}

// Get returns the room with the given code, or nil.
func (s *Store) Get(code string) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[code]
}

// List returns all active rooms in unspecified order.
func (s *Store) List() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		result = append(result, r)
	}
	return result
}

// Delete removes a room by code. Used by the operator API only.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	delete(s.rooms, code)
	s.mu.Unlock()
}

// Count returns the number of active rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
