package ws

import (
	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// Client is one live websocket connection. The engine only ever sees its
// opaque ID; roomCode tracks which broadcast group it belongs to and is
// guarded by the hub's lock.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	id string
	ip string

	roomCode string
}

// newConnID returns a fresh opaque connection identifier.
func newConnID() string {
	return uuid.NewString()
}
