package game

import (
	"sort"
	"strings"
)

// PlayerView is the externally visible projection of a player, including
// the weighted vote tally against them and who cast those votes.
type PlayerView struct {
	Name        string   `json:"name"`
	Online      bool     `json:"online"`
	Role        string   `json:"role"`
	Votes       int      `json:"votes"`
	Eliminated  bool     `json:"eliminated"`
	CurrentVote string   `json:"current_vote,omitempty"`
	VotedBy     []string `json:"voted_by"`
}

// LobbyPlayer is the reduced roster entry broadcast while in the lobby.
type LobbyPlayer struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// mayorWeight is how many ordinary votes a mayor's vote counts for.
const mayorWeight = 2

// playerViews computes the full projection: per target, the weighted total
// of votes from living voters and the literal voter names, with mayor
// votes annotated. Caller must hold r.mu.
func playerViews(r *Room) []PlayerView {
	counts := make(map[string]int)
	details := make(map[string][]string)

	for _, voter := range r.Players {
		if voter.Eliminated || voter.CurrentVote == "" {
			continue
		}
		target := strings.ToLower(strings.TrimSpace(voter.CurrentVote))
		if sameName(voter.Role, RoleMayor) {
			counts[target] += mayorWeight
			details[target] = append(details[target], voter.Name+" (x2)")
		} else {
			counts[target]++
			details[target] = append(details[target], voter.Name)
		}
	}

	views := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		votedBy := details[key]
		if votedBy == nil {
			votedBy = []string{}
		}
		views = append(views, PlayerView{
			Name:        p.Name,
			Online:      p.Online,
			Role:        p.Role,
			Votes:       counts[key],
			Eliminated:  p.Eliminated,
			CurrentVote: p.CurrentVote,
			VotedBy:     votedBy,
		})
	}
	return views
}

// lobbyPlayers returns the roster sorted case-insensitively by name.
// Caller must hold r.mu.
func lobbyPlayers(r *Room) []LobbyPlayer {
	roster := make([]LobbyPlayer, 0, len(r.Players))
	for _, p := range r.Players {
		roster = append(roster, LobbyPlayer{Name: p.Name, Online: p.Online})
	}
	sort.Slice(roster, func(i, j int) bool {
		return strings.ToLower(roster[i].Name) < strings.ToLower(roster[j].Name)
	})
	return roster
}
