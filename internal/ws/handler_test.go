package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/mruberto/lupus/internal/game"
	"github.com/mruberto/lupus/internal/journal"
	"github.com/mruberto/lupus/internal/ratelimit"
)

// newGameServer wires the full websocket stack over an in-memory journal
// and returns the handler's test server plus the journal for assertions.
func newGameServer(t *testing.T, createLimit *ratelimit.Limiter) (*httptest.Server, *journal.MemoryStore) {
	t.Helper()
	conns := NewConnManager()
	hub := NewHub(conns)
	jstore := journal.NewMemoryStore(50)
	hub.SetJournal(jstore)
	engine := game.NewEngine(game.NewStore(), game.NewRegistry(), hub)
	handler := NewHandler(hub, engine, jstore, createLimit, 20)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	t.Cleanup(conns.Shutdown)
	return ts, jstore
}

func sendRPC(t *testing.T, conn *websocket.Conn, rpcType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(Envelope{Type: rpcType, Payload: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

// readUntil drains envelopes until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) Envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Until(deadline))
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", wantType, err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == wantType {
			return env
		}
	}
	t.Fatalf("no %q envelope before the deadline", wantType)
	return Envelope{}
}

// createRoom drives the create RPC and returns the new room code.
func createRoom(t *testing.T, conn *websocket.Conn, hostName string) string {
	t.Helper()
	sendRPC(t, conn, rpcCreate, createPayload{HostName: hostName})
	env := readUntil(t, conn, "room_created")
	var p roomCreatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal room_created: %v", err)
	}
	if p.RoomCode == "" {
		t.Fatal("expected a room code")
	}
	return p.RoomCode
}

func TestHandlerCreateRoom(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	conn := dialWS(t, ts.URL, "")
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendRPC(t, conn, rpcCreate, createPayload{HostName: "Alice"})

	env := readUntil(t, conn, game.EventHostSecret)
	var secret game.HostSecretPayload
	if err := json.Unmarshal(env.Payload, &secret); err != nil {
		t.Fatalf("unmarshal host_secret: %v", err)
	}
	if secret.HostSecret == "" {
		t.Error("expected a non-empty host secret")
	}

	readUntil(t, conn, game.EventLobby)
	readUntil(t, conn, "room_created")
}

func TestHandlerJoinDeliversResultAndHistory(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	host := dialWS(t, ts.URL, "")
	defer host.Close(websocket.StatusNormalClosure, "")
	code := createRoom(t, host, "Alice")

	player := dialWS(t, ts.URL, "")
	defer player.Close(websocket.StatusNormalClosure, "")
	sendRPC(t, player, rpcJoin, joinPayload{RoomCode: code, Name: "Bob"})

	env := readUntil(t, player, "join_result")
	var res game.JoinResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		t.Fatalf("unmarshal join_result: %v", err)
	}
	if !res.OK || res.RoomCode != code || res.HostName != "Alice" {
		t.Fatalf("unexpected join result: %+v", res)
	}
	if len(res.Players) != 1 || res.Players[0].Name != "Bob" {
		t.Errorf("unexpected projection: %+v", res.Players)
	}

	// A successful join also replays the room's recent history.
	env = readUntil(t, player, "history")
	var entries []*journal.Entry
	if err := json.Unmarshal(env.Payload, &entries); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected replayed entries from room creation")
	}

	// The host sees the updated lobby.
	env = readUntil(t, host, game.EventLobby)
	var lobby game.LobbyPayload
	if err := json.Unmarshal(env.Payload, &lobby); err != nil {
		t.Fatalf("unmarshal lobby: %v", err)
	}
	found := false
	for _, p := range lobby.Players {
		if p.Name == "Bob" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Bob in the broadcast lobby, got %+v", lobby.Players)
	}
}

func TestHandlerJoinFailureStillAnswers(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	conn := dialWS(t, ts.URL, "")
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendRPC(t, conn, rpcJoin, joinPayload{RoomCode: "ZZZZ", Name: "Bob"})

	env := readUntil(t, conn, "join_result")
	var res game.JoinResult
	if err := json.Unmarshal(env.Payload, &res); err != nil {
		t.Fatalf("unmarshal join_result: %v", err)
	}
	if res.OK || res.Error == "" {
		t.Fatalf("expected a failure result, got %+v", res)
	}
}

func TestHandlerStartInsufficientRolesAnswersError(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	host := dialWS(t, ts.URL, "")
	defer host.Close(websocket.StatusNormalClosure, "")
	code := createRoom(t, host, "Alice")

	player := dialWS(t, ts.URL, "")
	defer player.Close(websocket.StatusNormalClosure, "")
	sendRPC(t, player, rpcJoin, joinPayload{RoomCode: code, Name: "Bob"})
	readUntil(t, player, "join_result")

	// Deck of zero roles for one candidate.
	sendRPC(t, host, rpcStart, startPayload{RoomCode: code, RoleCounts: game.RoleCounts{}})

	env := readUntil(t, host, game.EventError)
	var p game.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.Reason == "" {
		t.Error("expected a failure reason")
	}
}

func TestHandlerFullRound(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	host := dialWS(t, ts.URL, "")
	defer host.Close(websocket.StatusNormalClosure, "")
	code := createRoom(t, host, "Alice")

	player := dialWS(t, ts.URL, "")
	defer player.Close(websocket.StatusNormalClosure, "")
	sendRPC(t, player, rpcJoin, joinPayload{RoomCode: code, Name: "Bob"})
	readUntil(t, player, "join_result")

	sendRPC(t, host, rpcStart, startPayload{RoomCode: code, RoleCounts: game.RoleCounts{game.RoleVillager: 1}})

	env := readUntil(t, player, game.EventRole)
	var role game.RolePayload
	if err := json.Unmarshal(env.Payload, &role); err != nil {
		t.Fatalf("unmarshal role: %v", err)
	}
	if role.Role != game.RoleVillager {
		t.Errorf("expected villager, got %q", role.Role)
	}
	readUntil(t, player, game.EventGameStarted)

	sendRPC(t, host, rpcOpenVoting, roomPayload{RoomCode: code})
	readUntil(t, player, game.EventVotingStarted)

	sendRPC(t, player, rpcVote, votePayload{RoomCode: code, Target: "Bob"})
	env = readUntil(t, host, game.EventVotes)
	var votes game.VotesPayload
	for {
		if err := json.Unmarshal(env.Payload, &votes); err != nil {
			t.Fatalf("unmarshal votes: %v", err)
		}
		if len(votes.Players) == 1 && votes.Players[0].Votes == 1 {
			break
		}
		env = readUntil(t, host, game.EventVotes)
	}

	sendRPC(t, host, rpcEliminate, namePayload{RoomCode: code, Name: "Bob"})
	env = readUntil(t, player, game.EventPlayerEliminated)
	var dead game.PlayerNamePayload
	if err := json.Unmarshal(env.Payload, &dead); err != nil {
		t.Fatalf("unmarshal elimination: %v", err)
	}
	if dead.Name != "Bob" {
		t.Errorf("expected Bob eliminated, got %q", dead.Name)
	}
}

func TestHandlerCreateRateLimited(t *testing.T) {
	ts, _ := newGameServer(t, ratelimit.New(1, time.Minute))
	conn := dialWS(t, ts.URL, "")
	defer conn.Close(websocket.StatusNormalClosure, "")

	createRoom(t, conn, "Alice")

	sendRPC(t, conn, rpcCreate, createPayload{HostName: "Alice"})
	env := readUntil(t, conn, game.EventError)
	var p game.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.Reason == "" {
		t.Error("expected a rate-limit reason")
	}
}

func TestHandlerKickNotifiesTarget(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	host := dialWS(t, ts.URL, "")
	defer host.Close(websocket.StatusNormalClosure, "")
	code := createRoom(t, host, "Alice")

	player := dialWS(t, ts.URL, "")
	defer player.Close(websocket.StatusNormalClosure, "")
	sendRPC(t, player, rpcJoin, joinPayload{RoomCode: code, Name: "Bob"})
	readUntil(t, player, "join_result")

	sendRPC(t, host, rpcKick, namePayload{RoomCode: code, Name: "Bob"})

	env := readUntil(t, player, game.EventKicked)
	var p game.KickedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("unmarshal kicked: %v", err)
	}
	if p.RoomCode != code || p.HostName != "Alice" {
		t.Errorf("unexpected kicked payload: %+v", p)
	}
}

func TestHandlerMalformedEnvelopeIgnored(t *testing.T) {
	ts, _ := newGameServer(t, nil)
	conn := dialWS(t, ts.URL, "")
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("this is not json")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	// The connection survives garbage and still serves RPCs.
	createRoom(t, conn, "Alice")
}
