package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/mruberto/lupus/internal/game"
	"github.com/mruberto/lupus/internal/journal"
)

// Envelope is the JSON frame exchanged over the websocket in both
// directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub groups clients by room and implements the engine's Sender contract:
// group broadcast, unicast by connection ID and group membership. Sends
// never block; per-connection ordering is preserved by the send channels.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	byID  map[string]*Client
	conns *ConnManager

	journal journal.Store
}

// NewHub creates a hub on top of the given connection manager.
func NewHub(conns *ConnManager) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		byID:  make(map[string]*Client),
		conns: conns,
	}
}

// SetJournal makes the hub record every room broadcast.
func (h *Hub) SetJournal(j journal.Store) {
	h.journal = j
}

// ConnMgr returns the hub's connection manager.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// Register adds a client to the hub and starts its write pump. The
// returned context is cancelled when the client goes away.
func (h *Hub) Register(c *Client) context.Context {
	connCtx := h.conns.Add(c)
	h.mu.Lock()
	h.byID[c.id] = c
	h.mu.Unlock()
	return connCtx
}

// Unregister removes a client from the hub and from its room group.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.byID, c.id)
	h.dropFromRoomLocked(c)
	h.mu.Unlock()

	h.conns.Remove(c)
}

func (h *Hub) dropFromRoomLocked(c *Client) {
	if c.roomCode == "" {
		return
	}
	if members, ok := h.rooms[c.roomCode]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.roomCode)
		}
	}
	c.roomCode = ""
}

// AddToRoom puts a connection into a room's broadcast group, moving it out
// of any previous group first.
func (h *Hub) AddToRoom(connID, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.byID[connID]
	if !ok {
		return
	}
	h.dropFromRoomLocked(c)
	if h.rooms[roomCode] == nil {
		h.rooms[roomCode] = make(map[*Client]struct{})
	}
	h.rooms[roomCode][c] = struct{}{}
	c.roomCode = roomCode
}

// RemoveFromRoom takes a connection out of a room's broadcast group. The
// connection itself stays open.
func (h *Hub) RemoveFromRoom(connID, roomCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.byID[connID]
	if !ok || c.roomCode != roomCode {
		return
	}
	h.dropFromRoomLocked(c)
}

func marshalEvent(ev game.Event) ([]byte, json.RawMessage, bool) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		log.Printf("ws: failed to marshal %s payload: %v", ev.Type, err)
		return nil, nil, false
	}
	frame, err := json.Marshal(Envelope{Type: ev.Type, Payload: payload})
	if err != nil {
		log.Printf("ws: failed to marshal %s envelope: %v", ev.Type, err)
		return nil, nil, false
	}
	return frame, payload, true
}

// Broadcast sends an event to every member of a room's group and records
// it in the journal.
func (h *Hub) Broadcast(roomCode string, ev game.Event) {
	frame, payload, ok := marshalEvent(ev)
	if !ok {
		return
	}

	if h.journal != nil {
		h.journal.Append(&journal.Entry{
			ID:        uuid.NewString(),
			RoomCode:  roomCode,
			Type:      ev.Type,
			Payload:   payload,
			CreatedAt: time.Now(),
		})
	}

	h.mu.RLock()
	members := h.rooms[roomCode]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.conns.Send(c, frame)
	}
}

// Unicast sends an event to a single connection. Delivery is best effort;
// a missing or slow connection is not an error.
func (h *Hub) Unicast(connID string, ev game.Event) {
	frame, _, ok := marshalEvent(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	c := h.byID[connID]
	h.mu.RUnlock()

	if c != nil {
		h.conns.Send(c, frame)
	}
}

// ClientCount returns the number of connections in a room's group.
func (h *Hub) ClientCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// CloseRoom force-closes every connection in a room's group. Used by the
// operator API when deleting a room.
func (h *Hub) CloseRoom(roomCode string) {
	h.mu.RLock()
	members := h.rooms[roomCode]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.conn.Close(websocket.StatusNormalClosure, "room closed")
	}
}
