package game

// Event is one outbound message. The transport marshals the payload; the
// engine never touches JSON.
type Event struct {
	Type    string
	Payload any
}

// Event types pushed to clients.
const (
	EventHostSecret       = "host_secret"
	EventLobby            = "lobby"
	EventVotes            = "votes"
	EventVotingStarted    = "voting_started"
	EventVotingEnded      = "voting_ended"
	EventGameStarted      = "game_started"
	EventGameRestarted    = "game_restarted"
	EventRole             = "role"
	EventCouplePaired     = "couple_paired"
	EventCoupleSleep      = "couple_sleep"
	EventCoupleSaved      = "couple_saved"
	EventCoupleDied       = "couple_died"
	EventPlayerEliminated = "player_eliminated"
	EventPlayerRevived    = "player_revived"
	EventPlayerKicked     = "player_kicked"
	EventKicked           = "kicked"
	EventMediumReveal     = "medium_reveal"
	EventHostRoomInfo     = "host_room_info"
	EventError            = "error"
)

// Sender is the messaging transport consumed by the engine: opaque
// connection IDs, per-room groups, group broadcast and unicast. Delivery
// is best effort and fire-and-forget; state is mutated before any send.
type Sender interface {
	Broadcast(roomCode string, ev Event)
	Unicast(connID string, ev Event)
	AddToRoom(connID, roomCode string)
	RemoveFromRoom(connID, roomCode string)
}

// HostSecretPayload delivers the reclaim secret to the creating connection
// only. It must never be broadcast.
type HostSecretPayload struct {
	HostSecret string `json:"host_secret"`
}

// LobbyPayload is the roster broadcast sent after any membership change.
type LobbyPayload struct {
	Players    []LobbyPlayer `json:"players"`
	HostName   string        `json:"host_name"`
	HostOnline bool          `json:"host_online"`
}

// VotesPayload is the full player projection broadcast after any
// vote-relevant change.
type VotesPayload struct {
	Players []PlayerView `json:"players"`
}

// GameStartedPayload announces a successful deal to the whole room.
type GameStartedPayload struct {
	Players    []PlayerView `json:"players"`
	HostName   string       `json:"host_name"`
	HostOnline bool         `json:"host_online"`
	RoleCounts RoleCounts   `json:"role_counts"`
}

// GameRestartedPayload announces the return to the lobby.
type GameRestartedPayload struct {
	Players  []LobbyPlayer `json:"players"`
	HostName string        `json:"host_name"`
}

// RolePayload privately delivers a player's role.
type RolePayload struct {
	Role string `json:"role"`
}

// CouplePairedPayload privately introduces one half of the couple to the
// other.
type CouplePairedPayload struct {
	PartnerName string `json:"partner_name"`
	PartnerRole string `json:"partner_role"`
}

// CoupleSleepPayload announces which side of the couple shelters the other.
type CoupleSleepPayload struct {
	Side string `json:"side"`
}

// CoupleSavedPayload announces a vetoed elimination.
type CoupleSavedPayload struct {
	SavedName string `json:"saved_name"`
	ByName    string `json:"by_name"`
}

// CoupleDiedPayload announces that the couple died together.
type CoupleDiedPayload struct {
	RomeoName     string `json:"romeo_name"`
	GiuliettaName string `json:"giulietta_name"`
}

// PlayerNamePayload carries a single player name for eliminated / revived /
// kicked broadcasts.
type PlayerNamePayload struct {
	Name string `json:"name"`
}

// KickedPayload is sent to the kicked connection before it is detached.
type KickedPayload struct {
	RoomCode string `json:"room_code"`
	HostName string `json:"host_name"`
}

// MediumRevealPayload privately names a dead player's true role.
type MediumRevealPayload struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// HostRoomInfoPayload answers the host-only roster query.
type HostRoomInfoPayload struct {
	RoomCode string        `json:"room_code"`
	Players  []LobbyPlayer `json:"players"`
}

// ErrorPayload carries a human-readable failure reason to the caller only.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// JoinResult is the structured answer to every join attempt. Failure
// variants still carry the best-effort current projection so the client
// can render context around the error.
type JoinResult struct {
	OK          bool         `json:"ok"`
	Error       string       `json:"error,omitempty"`
	RoomCode    string       `json:"room_code"`
	HostName    string       `json:"host_name"`
	IsHost      bool         `json:"is_host"`
	GameStarted bool         `json:"game_started"`
	VotingOpen  bool         `json:"voting_open"`
	Role        string       `json:"role,omitempty"`
	Players     []PlayerView `json:"players"`
	RoleCounts  RoleCounts   `json:"role_counts,omitempty"`
}
