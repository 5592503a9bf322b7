// internal/bracket/bracket.go

// Package bracket generates single-elimination pairings. It is pure: given
// the same participants and the same prior-round results, it always produces
// the same pairing, so a crashed server can recompute a round from persisted
// match rows alone. Only the first round's shuffle is random.
package bracket

import (
	"math"
	"math/rand"
	"sort"

	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
)

// Pair is a single matchup. PlayerOne/PlayerTwo order follows pool order.
type Pair struct {
	PlayerOne uuid.UUID
	PlayerTwo uuid.UUID
}

// PairFirstRound shuffles players with a uniformly random permutation and
// groups them sequentially into pairs. If the count is odd, the trailing
// player receives a bye (returned separately, no Game is created for them).
//
// rng may be nil, in which case the global math/rand source is used. Tests
// inject a seeded source.
func PairFirstRound(players []uuid.UUID, rng *rand.Rand) ([]Pair, uuid.UUID) {
	pool := make([]uuid.UUID, len(players))
	copy(pool, players)

	if rng != nil {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	} else {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}

	return PairPool(pool)
}

// NextRoundPool builds the participant pool for the round after prevRound.
// Winners are taken in match-index order, never map order. Any still-enabled
// player who had no game in prevRound (a bye) is appended after the winners,
// sorted by user id so the result is deterministic.
func NextRoundPool(prevRound []models.Game, enabled []uuid.UUID) []uuid.UUID {
	games := make([]models.Game, len(prevRound))
	copy(games, prevRound)
	sort.Slice(games, func(i, j int) bool { return games[i].MatchIndex < games[j].MatchIndex })

	played := make(map[uuid.UUID]bool, len(games)*2)
	pool := make([]uuid.UUID, 0, len(games)+1)
	for _, g := range games {
		played[g.PlayerOneID] = true
		played[g.PlayerTwoID] = true
		if g.WinnerID != nil {
			pool = append(pool, *g.WinnerID)
		}
	}

	var byes []uuid.UUID
	for _, id := range enabled {
		if !played[id] {
			byes = append(byes, id)
		}
	}
	sort.Slice(byes, func(i, j int) bool { return byes[i].String() < byes[j].String() })

	return append(pool, byes...)
}

// PairPool groups an ordered pool sequentially: pool[2i] vs pool[2i+1]. An
// odd leftover gets a bye and is seeded directly into the next round's pool.
// The returned bye is uuid.Nil when the pool length is even.
func PairPool(pool []uuid.UUID) ([]Pair, uuid.UUID) {
	pairs := make([]Pair, 0, len(pool)/2)
	for i := 0; i+1 < len(pool); i += 2 {
		pairs = append(pairs, Pair{PlayerOne: pool[i], PlayerTwo: pool[i+1]})
	}
	if len(pool)%2 == 1 {
		return pairs, pool[len(pool)-1]
	}
	return pairs, uuid.Nil
}

// TotalRounds returns ceil(log2(playerCount)), the number of rounds a
// single-elimination bracket needs for the given headcount.
func TotalRounds(playerCount int) int {
	if playerCount < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(playerCount))))
}
