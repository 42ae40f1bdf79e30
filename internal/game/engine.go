package game

import "strings"

// Engine owns the room state machine. Every public operation validates the
// caller against the registry and the room before mutating, holds the
// room's lock for the whole mutation, and only then hands events to the
// sender. A failed send can never corrupt or block room state.
type Engine struct {
	rooms  *Store
	idents *Registry
	sender Sender
}

// NewEngine wires the engine to its stores and transport.
func NewEngine(rooms *Store, idents *Registry, sender Sender) *Engine {
	return &Engine{rooms: rooms, idents: idents, sender: sender}
}

// outbound is a pending send, collected under the room lock and flushed
// after it is released.
type outbound struct {
	conn string // unicast target; empty means broadcast
	room string
	ev   Event
}

func broadcast(roomCode string, ev Event) outbound {
	return outbound{room: roomCode, ev: ev}
}

func unicast(connID string, ev Event) outbound {
	return outbound{conn: connID, ev: ev}
}

func (e *Engine) flush(outs []outbound) {
	for _, o := range outs {
		if o.conn != "" {
			e.sender.Unicast(o.conn, o.ev)
		} else {
			e.sender.Broadcast(o.room, o.ev)
		}
	}
}

// hostOnlineLocked reports whether the room's host connection is both
// present and still registered. Caller must hold r.mu.
func (e *Engine) hostOnlineLocked(r *Room) bool {
	if r.HostConn == "" {
		return false
	}
	_, ok := e.idents.Resolve(r.HostConn)
	return ok
}

// lobbyAndVotesLocked builds the two broadcasts that follow every
// membership or vote-relevant change. Caller must hold r.mu.
func (e *Engine) lobbyAndVotesLocked(r *Room) []outbound {
	return []outbound{
		broadcast(r.Code, Event{EventLobby, LobbyPayload{
			Players:    lobbyPlayers(r),
			HostName:   r.HostName,
			HostOnline: e.hostOnlineLocked(r),
		}}),
		broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}),
	}
}

// CreateRoom allocates a room, binds the caller as its host and delivers
// the host secret to the caller only. Returns the new room code.
func (e *Engine) CreateRoom(connID, hostName string) string {
	r := e.rooms.Create(strings.TrimSpace(hostName))

	r.mu.Lock()
	r.HostConn = connID
	secret := r.HostSecret
	r.mu.Unlock()

	e.idents.Register(connID, Identity{RoomCode: r.Code, IsHost: true})
	e.sender.AddToRoom(connID, r.Code)

	e.sender.Unicast(connID, Event{EventHostSecret, HostSecretPayload{HostSecret: secret}})

	r.mu.Lock()
	outs := e.lobbyAndVotesLocked(r)
	r.mu.Unlock()
	e.flush(outs)

	return r.Code
}

// failLocked builds the failure variant of JoinResult with the best-effort
// current projection. Caller must hold r.mu.
func failLocked(r *Room, reason string) JoinResult {
	res := JoinResult{
		OK:          false,
		Error:       reason,
		RoomCode:    r.Code,
		HostName:    r.HostName,
		GameStarted: r.GameStarted,
		VotingOpen:  r.VotingOpen,
		Players:     playerViews(r),
	}
	if r.GameStarted {
		res.RoleCounts = r.SavedCounts
	}
	return res
}

// Join reconciles a connection with a room identity: host reclaim (secret
// required while the host is offline), player reconnection by name, or a
// fresh player while the room is still in the lobby.
func (e *Engine) Join(connID, roomCode, name, hostSecret string) JoinResult {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return JoinResult{
			OK:       false,
			Error:    ErrRoomNotFound.Error(),
			RoomCode: roomCode,
			Players:  []PlayerView{},
		}
	}

	trimmed := strings.TrimSpace(name)

	r.mu.Lock()

	if sameName(trimmed, r.HostName) {
		hostOnline := e.hostOnlineLocked(r)

		if hostOnline && r.HostConn != connID {
			res := failLocked(r, ErrHostOnline.Error())
			r.mu.Unlock()
			return res
		}
		if !hostOnline && strings.TrimSpace(hostSecret) != r.HostSecret {
			res := failLocked(r, ErrInvalidHostSecret.Error())
			r.mu.Unlock()
			return res
		}

		r.HostConn = connID
		res := JoinResult{
			OK:          true,
			RoomCode:    r.Code,
			HostName:    r.HostName,
			IsHost:      true,
			GameStarted: r.GameStarted,
			VotingOpen:  r.VotingOpen,
			Players:     playerViews(r),
		}
		if r.GameStarted {
			res.RoleCounts = r.SavedCounts
		}
		r.mu.Unlock()

		e.idents.Register(connID, Identity{RoomCode: r.Code, IsHost: true})
		e.sender.AddToRoom(connID, r.Code)
		e.finishJoin(connID, r)
		return res
	}

	p := r.findPlayer(trimmed)

	if p != nil && p.Online && p.Conn != connID {
		res := failLocked(r, ErrNameTaken.Error())
		r.mu.Unlock()
		return res
	}

	var outs []outbound
	if p == nil {
		if r.GameStarted {
			res := failLocked(r, ErrGameStarted.Error())
			r.mu.Unlock()
			return res
		}
		p = &Player{Name: trimmed, Conn: connID, Online: true}
		r.Players = append(r.Players, p)
	} else {
		// Reconnection: rebind and privately re-deliver the role.
		p.Conn = connID
		p.Online = true
		if p.Role != "" {
			outs = append(outs, unicast(connID, Event{EventRole, RolePayload{Role: p.Role}}))
		}
	}

	res := JoinResult{
		OK:          true,
		RoomCode:    r.Code,
		HostName:    r.HostName,
		GameStarted: r.GameStarted,
		VotingOpen:  r.VotingOpen,
		Role:        p.Role,
		Players:     playerViews(r),
	}
	if r.GameStarted {
		res.RoleCounts = r.SavedCounts
	}
	r.mu.Unlock()

	e.idents.Register(connID, Identity{RoomCode: r.Code, PlayerName: p.Name})
	e.sender.AddToRoom(connID, r.Code)
	e.flush(outs)
	e.finishJoin(connID, r)
	return res
}

// finishJoin broadcasts the fresh projection and tells the caller which
// voting phase the room is in, so a reconnecting UI never shows a stale
// phase.
func (e *Engine) finishJoin(connID string, r *Room) {
	r.mu.Lock()
	outs := e.lobbyAndVotesLocked(r)
	phase := EventVotingEnded
	if r.VotingOpen {
		phase = EventVotingStarted
	}
	r.mu.Unlock()

	outs = append(outs, unicast(connID, Event{phase, struct{}{}}))
	e.flush(outs)
}

// Leave marks the caller's identity offline without deleting any records,
// so the host can reclaim and players can return later.
func (e *Engine) Leave(connID, roomCode string) {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return
	}

	r.mu.Lock()
	if r.isHostConn(connID) {
		r.HostConn = ""
	} else if p := r.findByConn(connID); p != nil {
		p.Online = false
		p.Conn = ""
	}
	r.mu.Unlock()

	e.idents.Unregister(connID)
	e.sender.RemoveFromRoom(connID, roomCode)

	r.mu.Lock()
	outs := e.lobbyAndVotesLocked(r)
	r.mu.Unlock()
	e.flush(outs)
}

// Disconnect is the transport's drop callback. It shares the Leave
// mutation so a network drop and a voluntary leave behave identically.
func (e *Engine) Disconnect(connID string) {
	id, ok := e.idents.Resolve(connID)
	if !ok {
		return
	}
	e.idents.Unregister(connID)

	r := e.rooms.Get(id.RoomCode)
	if r == nil {
		return
	}

	r.mu.Lock()
	if id.IsHost {
		if r.HostConn == connID {
			r.HostConn = ""
		}
	} else if p := r.findPlayer(id.PlayerName); p != nil {
		p.Online = false
		p.Conn = ""
	}
	outs := e.lobbyAndVotesLocked(r)
	r.mu.Unlock()
	e.flush(outs)
}

// Restart returns the room to the lobby, wiping all per-round state.
func (e *Engine) Restart(connID, roomCode string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}

	r.resetRound()
	r.SavedCounts = nil

	outs := []outbound{broadcast(r.Code, Event{EventGameRestarted, GameRestartedPayload{
		Players:  lobbyPlayers(r),
		HostName: r.HostName,
	}})}
	outs = append(outs, e.lobbyAndVotesLocked(r)...)
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// Start deals a fresh round. Candidates are the players alive at the
// moment of the call; if the deck is smaller than that, nothing mutates.
// On success all per-round state is reset first, so re-dealing is
// idempotent and never leaks the previous round.
func (e *Engine) Start(connID, roomCode string, counts RoleCounts) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}

	deck := buildDeck(counts)

	var candidates []*Player
	for _, p := range r.Players {
		if !p.Eliminated {
			candidates = append(candidates, p)
		}
	}

	if len(deck) < len(candidates) {
		r.mu.Unlock()
		return ErrInsufficientRoles
	}

	r.resetRound()
	assignRoles(deck, candidates)

	var outs []outbound
	outs = append(outs, e.pairCouplesLocked(r, candidates)...)

	r.GameStarted = true
	r.VotingOpen = false
	r.SavedCounts = counts

	for _, p := range r.Players {
		if p.Online && p.Conn != "" {
			outs = append(outs, unicast(p.Conn, Event{EventRole, RolePayload{Role: p.Role}}))
		}
	}

	outs = append(outs, broadcast(r.Code, Event{EventGameStarted, GameStartedPayload{
		Players:    playerViews(r),
		HostName:   r.HostName,
		HostOnline: e.hostOnlineLocked(r),
		RoleCounts: counts,
	}}))
	outs = append(outs, e.lobbyAndVotesLocked(r)...)
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// pairCouplesLocked matches romeos and giuliettas in deal order. The first
// pair becomes the tracked couple with the shelter on romeo's side; every
// pair is privately introduced to each other. Caller must hold r.mu.
func (e *Engine) pairCouplesLocked(r *Room, candidates []*Player) []outbound {
	var romeos, giuliettas []*Player
	for _, p := range candidates {
		switch p.Role {
		case RoleRomeo:
			romeos = append(romeos, p)
		case RoleGiulietta:
			giuliettas = append(giuliettas, p)
		}
	}

	pairs := len(romeos)
	if len(giuliettas) < pairs {
		pairs = len(giuliettas)
	}

	var outs []outbound
	for i := 0; i < pairs; i++ {
		ro, gi := romeos[i], giuliettas[i]
		if i == 0 {
			r.RomeoName = ro.Name
			r.GiuliettaName = gi.Name
			r.SleepAt = SleepAtRomeo
		}
		if ro.Conn != "" {
			outs = append(outs, unicast(ro.Conn, Event{EventCouplePaired, CouplePairedPayload{
				PartnerName: gi.Name, PartnerRole: gi.Role,
			}}))
		}
		if gi.Conn != "" {
			outs = append(outs, unicast(gi.Conn, Event{EventCouplePaired, CouplePairedPayload{
				PartnerName: ro.Name, PartnerRole: ro.Role,
			}}))
		}
	}
	return outs
}

// OpenVoting opens a voting window, clearing any votes carried over from
// the previous one. Voting windows only exist inside a running round.
func (e *Engine) OpenVoting(connID, roomCode string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if !r.GameStarted {
		r.mu.Unlock()
		return ErrGameNotStarted
	}

	r.VotingOpen = true
	for _, p := range r.Players {
		p.CurrentVote = ""
	}

	outs := []outbound{
		broadcast(r.Code, Event{EventVotingStarted, struct{}{}}),
		broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}),
	}
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// CloseVoting closes the voting window. Votes stay visible until the next
// window opens.
func (e *Engine) CloseVoting(connID, roomCode string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if !r.GameStarted {
		r.mu.Unlock()
		return ErrGameNotStarted
	}

	r.VotingOpen = false
	outs := []outbound{
		broadcast(r.Code, Event{EventVotingEnded, struct{}{}}),
		broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}),
	}
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// Vote records the caller's current vote. An empty target retracts it.
func (e *Engine) Vote(connID, roomCode, target string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.VotingOpen {
		r.mu.Unlock()
		return ErrVotingClosed
	}

	voter := r.findByConn(connID)
	if voter == nil || voter.Eliminated {
		r.mu.Unlock()
		return ErrNotAPlayer
	}

	voter.CurrentVote = strings.TrimSpace(target)
	outs := []outbound{broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}})}
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// Unvote retracts the caller's vote.
func (e *Engine) Unvote(connID, roomCode string) error {
	return e.Vote(connID, roomCode, "")
}

// CoupleSleepAt sets which side of the couple shelters the other. Only a
// living holder of one of the paired roles may call it.
func (e *Engine) CoupleSleepAt(connID, roomCode, side string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	side = strings.ToLower(strings.TrimSpace(side))
	if side != SleepAtRomeo && side != SleepAtGiulietta {
		return nil
	}

	r.mu.Lock()
	me := r.findByConn(connID)
	if me == nil || me.Eliminated {
		r.mu.Unlock()
		return ErrNotAPlayer
	}
	if me.Role != RoleRomeo && me.Role != RoleGiulietta {
		r.mu.Unlock()
		return ErrUnauthorized
	}

	r.SleepAt = side
	outs := []outbound{broadcast(r.Code, Event{EventCoupleSleep, CoupleSleepPayload{Side: side}})}
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// Eliminate marks the named player dead. Giulietta is immune while the
// couple sleeps at romeo's side; romeo's death always drags giulietta down
// in the same operation, regardless of shelter.
func (e *Engine) Eliminate(connID, roomCode, name string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}

	p := r.findPlayer(name)
	if p == nil || p.Eliminated {
		r.mu.Unlock()
		return nil
	}

	isGiulietta := r.GiuliettaName != "" && sameName(p.Name, r.GiuliettaName)
	isRomeo := r.RomeoName != "" && sameName(p.Name, r.RomeoName)

	if isGiulietta && r.SleepAt == SleepAtRomeo {
		outs := []outbound{
			broadcast(r.Code, Event{EventCoupleSaved, CoupleSavedPayload{
				SavedName: p.Name, ByName: r.RomeoName,
			}}),
			broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}),
		}
		r.mu.Unlock()
		e.flush(outs)
		return nil
	}

	var outs []outbound
	p.Eliminated = true
	outs = append(outs, broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}))
	outs = append(outs, broadcast(r.Code, Event{EventPlayerEliminated, PlayerNamePayload{Name: p.Name}}))
	outs = append(outs, revealToMediumsLocked(r, p)...)

	if isRomeo && r.GiuliettaName != "" {
		if gi := r.findPlayer(r.GiuliettaName); gi != nil && !gi.Eliminated {
			gi.Eliminated = true
			outs = append(outs, broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}))
			outs = append(outs, broadcast(r.Code, Event{EventPlayerEliminated, PlayerNamePayload{Name: gi.Name}}))
			outs = append(outs, revealToMediumsLocked(r, gi)...)
			outs = append(outs, broadcast(r.Code, Event{EventCoupleDied, CoupleDiedPayload{
				RomeoName: r.RomeoName, GiuliettaName: r.GiuliettaName,
			}}))
		}
	}
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// revealToMediumsLocked privately names the dead player's role to every
// living, online medium. An unassigned role is reported as the base
// faction role, never as unknown. Caller must hold r.mu.
func revealToMediumsLocked(r *Room, dead *Player) []outbound {
	role := dead.Role
	if strings.TrimSpace(role) == "" {
		role = RoleVillager
	}

	var outs []outbound
	for _, m := range r.Players {
		if m.Eliminated || !m.Online || m.Conn == "" || !sameName(m.Role, RoleMedium) {
			continue
		}
		outs = append(outs, unicast(m.Conn, Event{EventMediumReveal, MediumRevealPayload{
			Name: dead.Name, Role: role,
		}}))
	}
	return outs
}

// Revive clears a player's eliminated flag and any residual vote. It is
// idempotent on players that are already alive.
func (e *Engine) Revive(connID, roomCode, name string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}

	p := r.findPlayer(name)
	if p == nil {
		r.mu.Unlock()
		return nil
	}

	p.Eliminated = false
	p.CurrentVote = ""
	outs := []outbound{
		broadcast(r.Code, Event{EventVotes, VotesPayload{Players: playerViews(r)}}),
		broadcast(r.Code, Event{EventPlayerRevived, PlayerNamePayload{Name: p.Name}}),
	}
	r.mu.Unlock()

	e.flush(outs)
	return nil
}

// Kick removes a player record entirely. Lobby phase only, never the host.
// The removed connection is notified before it is detached from the room.
func (e *Engine) Kick(connID, roomCode, name string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if r.GameStarted {
		r.mu.Unlock()
		return ErrGameStarted
	}
	if sameName(name, r.HostName) {
		r.mu.Unlock()
		return ErrUnauthorized
	}

	p := r.findPlayer(name)
	if p == nil {
		r.mu.Unlock()
		return nil
	}

	kickedConn := p.Conn
	for i, q := range r.Players {
		if q == p {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			break
		}
	}

	outs := []outbound{broadcast(r.Code, Event{EventPlayerKicked, PlayerNamePayload{Name: p.Name}})}
	outs = append(outs, e.lobbyAndVotesLocked(r)...)
	hostName := r.HostName
	r.mu.Unlock()

	if kickedConn != "" {
		e.sender.Unicast(kickedConn, Event{EventKicked, KickedPayload{RoomCode: roomCode, HostName: hostName}})
		e.sender.RemoveFromRoom(kickedConn, roomCode)
		e.idents.Unregister(kickedConn)
	}

	e.flush(outs)
	return nil
}

// RoomInfo answers the host-only roster query with a private snapshot.
func (e *Engine) RoomInfo(connID, roomCode string) error {
	r := e.rooms.Get(roomCode)
	if r == nil {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	if !r.isHostConn(connID) {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	payload := HostRoomInfoPayload{RoomCode: r.Code, Players: lobbyPlayers(r)}
	r.mu.Unlock()

	e.sender.Unicast(connID, Event{EventHostRoomInfo, payload})
	return nil
}
