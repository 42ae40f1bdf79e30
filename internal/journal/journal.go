// Package journal records the events broadcast to each room so that a
// client joining (or rejoining) can catch up on what it missed, and so an
// operator can inspect a room's recent history. Retention is bounded per
// room; entries are best-effort and never part of the game state itself.
package journal

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one recorded room broadcast.
type Entry struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"room_code"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the interface for journal backends.
type Store interface {
	Append(e *Entry)
	Recent(roomCode string, n int) []*Entry
	After(roomCode, afterID string) []*Entry
	DeleteRoom(roomCode string)
	Count(roomCode string) int
}

// MemoryStore keeps the most recent entries per room in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[string][]*Entry
	maxSize int
}

// NewMemoryStore creates a journal retaining up to maxSize entries per room.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string][]*Entry),
		maxSize: maxSize,
	}
}

// Append records an entry, trimming the room's history to the retention cap.
func (s *MemoryStore) Append(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.rooms[e.RoomCode], e)
	if len(entries) > s.maxSize {
		entries = entries[len(entries)-s.maxSize:]
	}
	s.rooms[e.RoomCode] = entries
}

// Recent returns up to the last n entries for a room, oldest first.
func (s *MemoryStore) Recent(roomCode string, n int) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.rooms[roomCode]
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		return nil
	}
	result := make([]*Entry, len(entries))
	copy(result, entries)
	return result
}

// After returns all entries recorded after the one with the given ID.
// An empty or unknown ID yields nothing.
func (s *MemoryStore) After(roomCode, afterID string) []*Entry {
	if afterID == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.rooms[roomCode]
	for i, e := range entries {
		if e.ID == afterID {
			result := make([]*Entry, len(entries)-i-1)
			copy(result, entries[i+1:])
			return result
		}
	}
	return nil
}

// DeleteRoom drops a room's history.
func (s *MemoryStore) DeleteRoom(roomCode string) {
	s.mu.Lock()
	delete(s.rooms, roomCode)
	s.mu.Unlock()
}

// Count returns the number of retained entries for a room.
func (s *MemoryStore) Count(roomCode string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomCode])
}
