package game

import (
	"crypto/rand"
	"strings"
	"sync"
)

// Side identifies which half of the couple shelters the other.
const (
	SleepAtRomeo     = "romeo"
	SleepAtGiulietta = "giulietta"
)

// Player is one participant in a room. The record survives disconnects;
// only Conn and Online toggle until the host kicks the player.
type Player struct {
	Name        string
	Conn        string
	Online      bool
	Role        string
	CurrentVote string
	Eliminated  bool
}

// Room is one isolated game session. All mutable fields are guarded by mu;
// the engine locks it for the duration of every operation so concurrent
// calls against the same room never interleave.
type Room struct {
	mu sync.Mutex

	Code       string
	HostName   string
	HostSecret string
	HostConn   string

	Players []*Player

	GameStarted bool
	VotingOpen  bool

	// Couple sub-state. Names are set only when both paired roles were
	// actually dealt; SleepAt defaults to romeo's side.
	RomeoName     string
	GiuliettaName string
	SleepAt       string

	// Role counts from the most recent successful start, kept so clients
	// that connect after the deal can still see the deck composition.
	SavedCounts RoleCounts
}

// sameName compares trimmed names case-insensitively, the rule used for
// every identity check in a room.
func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// findPlayer returns the player with the given name, or nil.
// Caller must hold r.mu.
func (r *Room) findPlayer(name string) *Player {
	for _, p := range r.Players {
		if sameName(p.Name, name) {
			return p
		}
	}
	return nil
}

// findByConn returns the player bound to the given connection, or nil.
// Caller must hold r.mu.
func (r *Room) findByConn(connID string) *Player {
	for _, p := range r.Players {
		if p.Conn != "" && p.Conn == connID {
			return p
		}
	}
	return nil
}

// isHostConn reports whether connID currently owns the host role.
// Caller must hold r.mu.
func (r *Room) isHostConn(connID string) bool {
	return r.HostConn != "" && r.HostConn == connID
}

// resetRound clears every per-round field: roles, votes, eliminations and
// the couple. Phase flags are reset too, so the room is back in lobby shape.
// Caller must hold r.mu.
func (r *Room) resetRound() {
	r.GameStarted = false
	r.VotingOpen = false
	for _, p := range r.Players {
		p.Role = ""
		p.CurrentVote = ""
		p.Eliminated = false
	}
	r.RomeoName = ""
	r.GiuliettaName = ""
	r.SleepAt = SleepAtRomeo
}

// RoomSummary is the operator-facing view of a room. It never includes
// the host secret.
type RoomSummary struct {
	Code        string `json:"code"`
	HostName    string `json:"host_name"`
	Players     int    `json:"players"`
	Online      int    `json:"online"`
	GameStarted bool   `json:"game_started"`
	VotingOpen  bool   `json:"voting_open"`
}

// Summary snapshots the room for the admin API.
func (r *Room) Summary() RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	online := 0
	for _, p := range r.Players {
		if p.Online {
			online++
		}
	}
	return RoomSummary{
		Code:        r.Code,
		HostName:    r.HostName,
		Players:     len(r.Players),
		Online:      online,
		GameStarted: r.GameStarted,
		VotingOpen:  r.VotingOpen,
	}
}

// codeAlphabet excludes visually confusable characters (O/0, I/1, L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 4

// newRoomCode returns a short random code drawn from codeAlphabet.
func newRoomCode() string {
	b := make([]byte, codeLength)
	rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
