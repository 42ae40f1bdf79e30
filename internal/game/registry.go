package game

import "sync"

// Identity records what a live connection currently represents: the room it
// belongs to and whether it is the host or a named player. PlayerName is
// empty for the host.
type Identity struct {
	RoomCode   string
	PlayerName string
	IsHost     bool
}

// Registry maps connection IDs to identities so disconnect handling can
// locate the affected room and player in O(1). It holds back-references
// only; it never owns player records.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Identity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Identity)}
}

// Register binds a connection to an identity, replacing any previous entry.
func (g *Registry) Register(connID string, id Identity) {
	g.mu.Lock()
	g.conns[connID] = id
	g.mu.Unlock()
}

// Resolve returns the identity for a connection. A missing entry means
// there is nothing to clean up.
func (g *Registry) Resolve(connID string) (Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.conns[connID]
	return id, ok
}

// Unregister removes the entry for a connection, if any.
func (g *Registry) Unregister(connID string) {
	g.mu.Lock()
	delete(g.conns, connID)
	g.mu.Unlock()
}

// Count returns the number of registered connections.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}
