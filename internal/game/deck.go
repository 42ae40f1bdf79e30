package game

import (
	"crypto/rand"
	"math/big"
)

// Role identifiers. Clients receive these verbatim.
const (
	RoleWolf      = "wolf"
	RoleVillager  = "villager"
	RoleSeer      = "seer"
	RoleGuard     = "guard"
	RoleJester    = "jester"
	RoleHunter    = "hunter"
	RoleWitch     = "witch"
	RoleMayor     = "mayor"
	RoleHitman    = "hitman"
	RoleMedium    = "medium"
	RoleLara      = "lara"
	RoleRomeo     = "romeo"
	RoleGiulietta = "giulietta"
)

// CountKeyCouple is the role-count key for couples. One couple consumes two
// deck slots: one romeo and one giulietta.
const CountKeyCouple = "couple"

// maxCouples caps the number of couples a host can request.
const maxCouples = 2

// deckOrder fixes the expansion order of the count keys into the deck.
var deckOrder = []string{
	RoleWolf, RoleVillager, RoleSeer, RoleGuard, RoleJester,
	RoleHunter, RoleWitch, RoleMayor, RoleHitman, RoleMedium, RoleLara,
}

// RoleCounts maps a role identifier (or "couple") to the requested number
// of deck slots.
type RoleCounts map[string]int

// buildDeck expands the counts into a flat multiset of role tokens.
// Negative counts contribute nothing; the couple count is capped.
func buildDeck(rc RoleCounts) []string {
	var deck []string
	for _, role := range deckOrder {
		for i := 0; i < rc[role]; i++ {
			deck = append(deck, role)
		}
	}

	couples := rc[CountKeyCouple]
	if couples > maxCouples {
		couples = maxCouples
	}
	for i := 0; i < couples; i++ {
		deck = append(deck, RoleRomeo)
	}
	for i := 0; i < couples; i++ {
		deck = append(deck, RoleGiulietta)
	}
	return deck
}

// cryptoIntn returns a uniform random int in [0, n) from crypto/rand.
// Room decks must not be predictable across rooms, so no seeded PRNG.
func cryptoIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails if the platform source is broken.
		panic(err)
	}
	return int(v.Int64())
}

// shuffle permutes s in place with a Fisher–Yates walk.
func shuffle[T any](s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := cryptoIntn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// assignRoles deals the deck to the candidates. Both sides are permuted
// independently: shuffling only the deck would still correlate positions
// with join order. Deck surplus beyond the candidate count is discarded.
func assignRoles(deck []string, candidates []*Player) {
	shuffle(deck)
	shuffle(candidates)

	n := len(candidates)
	if len(deck) < n {
		n = len(deck)
	}
	for i := 0; i < n; i++ {
		candidates[i].Role = deck[i]
	}
}
