package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/mruberto/lupus/internal/game"
	"github.com/mruberto/lupus/internal/journal"
	"github.com/mruberto/lupus/internal/ratelimit"
)

// RPC types accepted from clients.
const (
	rpcCreate      = "create"
	rpcJoin        = "join"
	rpcLeave       = "leave"
	rpcStart       = "start"
	rpcRestart     = "restart"
	rpcOpenVoting  = "open_voting"
	rpcCloseVoting = "close_voting"
	rpcVote        = "vote"
	rpcUnvote      = "unvote"
	rpcEliminate   = "eliminate"
	rpcRevive      = "revive"
	rpcKick        = "kick"
	rpcCoupleSleep = "couple_sleep"
	rpcRoomInfo    = "room_info"
	rpcHeartbeat   = "heartbeat"
)

type createPayload struct {
	HostName string `json:"host_name"`
}

type joinPayload struct {
	RoomCode   string `json:"room_code"`
	Name       string `json:"name"`
	HostSecret string `json:"host_secret,omitempty"`
}

type roomPayload struct {
	RoomCode string `json:"room_code"`
}

type startPayload struct {
	RoomCode   string          `json:"room_code"`
	RoleCounts game.RoleCounts `json:"role_counts"`
}

type votePayload struct {
	RoomCode string `json:"room_code"`
	Target   string `json:"target,omitempty"`
}

type namePayload struct {
	RoomCode string `json:"room_code"`
	Name     string `json:"name"`
}

type sleepPayload struct {
	RoomCode string `json:"room_code"`
	Side     string `json:"side"`
}

type roomCreatedPayload struct {
	RoomCode string `json:"room_code"`
}

// Handler upgrades HTTP requests to websockets and routes client RPC
// envelopes into the game engine.
type Handler struct {
	hub          *Hub
	engine       *game.Engine
	journal      journal.Store
	createLimit  *ratelimit.Limiter
	replayLimit  int
	insecureOrig bool
}

// NewHandler creates a websocket handler. createLimit and jstore may be
// nil; replayLimit caps how many journal entries are replayed on join.
func NewHandler(hub *Hub, engine *game.Engine, jstore journal.Store, createLimit *ratelimit.Limiter, replayLimit int) *Handler {
	return &Handler{
		hub:          hub,
		engine:       engine,
		journal:      jstore,
		createLimit:  createLimit,
		replayLimit:  replayLimit,
		insecureOrig: true, // behind a reverse proxy in production
	}
}

// ServeHTTP runs one client's read loop until the connection drops, then
// funnels the disconnect into the engine so it resolves to "host offline"
// or "player offline" exactly like an explicit leave.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.insecureOrig,
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{
		conn: conn,
		id:   newConnID(),
		ip:   remoteIP(r),
	}

	connCtx := h.hub.Register(client)
	defer func() {
		h.hub.Unregister(client)
		h.engine.Disconnect(client.id)
	}()

	h.readLoop(r.Context(), connCtx, client)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}

		h.hub.ConnMgr().Touch(client)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.dispatch(client, env)
	}
}

// dispatch routes one envelope. Host-only commands issued without
// authority are dropped silently; only join and start answer failures.
func (h *Handler) dispatch(client *Client, env Envelope) {
	switch env.Type {
	case rpcCreate:
		var p createPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if h.createLimit != nil && !h.createLimit.Allow(client.ip) {
			h.sendError(client, "too many rooms created, slow down")
			return
		}
		code := h.engine.CreateRoom(client.id, p.HostName)
		h.hub.Unicast(client.id, game.Event{Type: "room_created", Payload: roomCreatedPayload{RoomCode: code}})

	case rpcJoin:
		var p joinPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		res := h.engine.Join(client.id, p.RoomCode, p.Name, p.HostSecret)
		h.hub.Unicast(client.id, game.Event{Type: "join_result", Payload: res})
		if res.OK {
			h.sendReplay(client, p.RoomCode)
		}

	case rpcLeave:
		var p roomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Leave(client.id, p.RoomCode)

	case rpcStart:
		var p startPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		if err := h.engine.Start(client.id, p.RoomCode, p.RoleCounts); errors.Is(err, game.ErrInsufficientRoles) {
			h.sendError(client, err.Error())
		}

	case rpcRestart:
		var p roomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Restart(client.id, p.RoomCode)

	case rpcOpenVoting:
		var p roomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.OpenVoting(client.id, p.RoomCode)

	case rpcCloseVoting:
		var p roomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.CloseVoting(client.id, p.RoomCode)

	case rpcVote:
		var p votePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Vote(client.id, p.RoomCode, p.Target)

	case rpcUnvote:
		var p roomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Unvote(client.id, p.RoomCode)

	case rpcEliminate:
		var p namePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Eliminate(client.id, p.RoomCode, p.Name)

	case rpcRevive:
		var p namePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Revive(client.id, p.RoomCode, p.Name)

	case rpcKick:
		var p namePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.Kick(client.id, p.RoomCode, p.Name)

	case rpcCoupleSleep:
		var p sleepPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.CoupleSleepAt(client.id, p.RoomCode, p.Side)

	case rpcRoomInfo:
		var p roomPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		h.engine.RoomInfo(client.id, p.RoomCode)

	case rpcHeartbeat:
		// Touch already happened; nothing else to do.
	}
}

// sendReplay delivers the room's recent journal entries to a freshly
// joined client so its UI can catch up on missed notices.
func (h *Handler) sendReplay(client *Client, roomCode string) {
	if h.journal == nil || h.replayLimit <= 0 {
		return
	}
	entries := h.journal.Recent(roomCode, h.replayLimit)
	if entries == nil {
		entries = []*journal.Entry{}
	}
	h.hub.Unicast(client.id, game.Event{Type: "history", Payload: entries})
}

func (h *Handler) sendError(client *Client, reason string) {
	h.hub.Unicast(client.id, game.Event{Type: game.EventError, Payload: game.ErrorPayload{Reason: reason}})
}
