// internal/lobby/aggregate.go

// Package lobby holds the authoritative state machine for one tournament
// lobby: roster, readiness, leadership and bracket progression. An Aggregate
// is never touched concurrently; the registry routes every command for a
// lobby through a single worker goroutine.
package lobby

import (
	"context"
	"math/rand"
	"time"

	"github.com/blue-orion/pongservice/internal/bracket"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
)

// Aggregate owns the mutable state of a single lobby. Every operation
// persists through the Store before committing to memory, so a failed
// command never becomes visible and no event is emitted for it.
type Aggregate struct {
	store Store

	lobby      models.Lobby
	tournament models.Tournament
	players    map[uuid.UUID]*models.LobbyPlayer
	games      []models.Game

	// rng seeds the first-round shuffle; nil means the global source.
	rng *rand.Rand
}

// MatchBatch is the result of a create-matches command: either a fresh set
// of games for the new round, or a completed tournament with its winner.
type MatchBatch struct {
	Completed bool          `json:"completed"`
	WinnerID  *uuid.UUID    `json:"winner_id,omitempty"`
	Round     int           `json:"round,omitempty"`
	Games     []models.Game `json:"games,omitempty"`
	ByeUserID *uuid.UUID    `json:"bye_user_id,omitempty"`
}

// New creates a lobby plus its tournament, auto-joining the creator as
// leader, and persists all of it.
func New(ctx context.Context, store Store, creatorID uuid.UUID, tournamentType int) (*Aggregate, []Event, error) {
	if !models.ValidTournamentTypes[tournamentType] {
		return nil, nil, ErrInvalidTournamentType
	}
	busy, err := store.UserInActiveLobby(ctx, creatorID)
	if err != nil {
		return nil, nil, err
	}
	if busy {
		return nil, nil, ErrAlreadyInOtherLobby
	}

	now := time.Now().UTC()
	t := models.Tournament{
		ID:     uuid.New(),
		Type:   tournamentType,
		Status: models.TournamentPending,
		Round:  0,
	}
	l := models.Lobby{
		ID:           uuid.New(),
		TournamentID: t.ID,
		MaxPlayers:   tournamentType,
		Status:       models.LobbyPending,
		CreatorID:    creatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	creator := models.LobbyPlayer{
		LobbyID:  l.ID,
		UserID:   creatorID,
		IsLeader: true,
		Enabled:  true,
	}

	a := &Aggregate{
		store:      store,
		lobby:      l,
		tournament: t,
		players:    map[uuid.UUID]*models.LobbyPlayer{creatorID: &creator},
	}
	if err := store.CreateLobby(ctx, a.Snapshot()); err != nil {
		return nil, nil, err
	}

	ev := a.event(EventPlayerJoined, PlayerJoinedPayload{Player: creator, PlayerCount: 1})
	return a, []Event{ev}, nil
}

// Load rebuilds an aggregate from persisted rows. Returns ErrLobbyNotFound
// when the lobby does not exist.
func Load(ctx context.Context, store Store, lobbyID uuid.UUID) (*Aggregate, error) {
	snap, err := store.GetLobbyState(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	games, err := store.ListGames(ctx, snap.Lobby.TournamentID)
	if err != nil {
		return nil, err
	}

	a := &Aggregate{
		store:      store,
		lobby:      snap.Lobby,
		tournament: snap.Tournament,
		players:    make(map[uuid.UUID]*models.LobbyPlayer, len(snap.Players)),
		games:      games,
	}
	for i := range snap.Players {
		p := snap.Players[i]
		a.players[p.UserID] = &p
	}
	return a, nil
}

// Join adds a user to a PENDING lobby. A previously disabled membership row
// is re-enabled instead of duplicated.
func (a *Aggregate) Join(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	switch a.lobby.Status {
	case models.LobbyCompleted:
		return nil, ErrLobbyNotFound
	case models.LobbyStarted:
		return nil, ErrLobbyAlreadyStarted
	}
	if p, ok := a.players[userID]; ok && p.Enabled {
		return nil, ErrAlreadyInLobby
	}
	// Live enabled count, never a cached counter.
	if a.enabledCount() >= a.lobby.MaxPlayers {
		return nil, ErrLobbyFull
	}

	row := models.LobbyPlayer{LobbyID: a.lobby.ID, UserID: userID, Enabled: true}
	if existing, ok := a.players[userID]; ok {
		row = *existing
		row.Enabled = true
		row.IsReady = false
		row.IsLeader = false
	}
	lob := a.lobby
	// A joiner into an empty roster becomes leader; otherwise exactly one
	// leader already exists among the enabled players.
	if a.enabledCount() == 0 {
		row.IsLeader = true
		lob.CreatorID = userID
	}
	lob.UpdatedAt = time.Now().UTC()

	if err := a.store.SaveLobbyState(ctx, lob, a.tournament, []models.LobbyPlayer{row}, nil); err != nil {
		return nil, err
	}
	a.lobby = lob
	a.players[userID] = &row

	ev := a.event(EventPlayerJoined, PlayerJoinedPayload{Player: row, PlayerCount: a.enabledCount()})
	return []Event{ev}, nil
}

// Leave disables the user's membership. If the leader leaves, the enabled
// player with the lowest user id is promoted. An emptied STARTED lobby is
// left for the lifecycle sweep to reap.
func (a *Aggregate) Leave(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	p, ok := a.players[userID]
	if !ok || !p.Enabled {
		return nil, ErrNotMember
	}

	row := *p
	row.Enabled = false
	row.IsReady = false
	wasLeader := row.IsLeader
	row.IsLeader = false

	lob := a.lobby
	lob.UpdatedAt = time.Now().UTC()
	changed := []models.LobbyPlayer{row}

	var promoted *models.LobbyPlayer
	if wasLeader {
		if next := a.lowestEnabledExcept(userID); next != nil {
			nrow := *next
			nrow.IsLeader = true
			promoted = &nrow
			lob.CreatorID = nrow.UserID
			changed = append(changed, nrow)
		}
	}

	if err := a.store.SaveLobbyState(ctx, lob, a.tournament, changed, nil); err != nil {
		return nil, err
	}
	a.lobby = lob
	*p = row
	if promoted != nil {
		*a.players[promoted.UserID] = *promoted
	}

	events := []Event{a.event(EventPlayerLeft, PlayerLeftPayload{UserID: userID, PlayerCount: a.enabledCount()})}
	if promoted != nil {
		events = append(events, a.event(EventLeadershipChanged, LeadershipChangedPayload{
			NewLeaderID:  promoted.UserID,
			PrevLeaderID: userID,
		}))
	}
	return events, nil
}

// ToggleReady flips the user's ready flag and returns the new state.
func (a *Aggregate) ToggleReady(ctx context.Context, userID uuid.UUID) (bool, []Event, error) {
	p, ok := a.players[userID]
	if !ok || !p.Enabled {
		return false, nil, ErrNotMember
	}

	row := *p
	row.IsReady = !row.IsReady
	lob := a.lobby
	lob.UpdatedAt = time.Now().UTC()

	if err := a.store.SaveLobbyState(ctx, lob, a.tournament, []models.LobbyPlayer{row}, nil); err != nil {
		return false, nil, err
	}
	a.lobby = lob
	*p = row

	ev := a.event(EventReadyChanged, ReadyChangedPayload{
		UserID:   userID,
		IsReady:  row.IsReady,
		AllReady: a.allReady(),
	})
	return row.IsReady, []Event{ev}, nil
}

// TransferLeadership moves the leader flag from the requester to the target.
func (a *Aggregate) TransferLeadership(ctx context.Context, requesterID, targetID uuid.UUID) ([]Event, error) {
	req, ok := a.players[requesterID]
	if !ok || !req.Enabled || !req.IsLeader {
		return nil, ErrNotLeader
	}
	if targetID == requesterID {
		return nil, ErrSelfTransfer
	}
	tgt, ok := a.players[targetID]
	if !ok || !tgt.Enabled {
		return nil, ErrTargetNotMember
	}

	reqRow, tgtRow := *req, *tgt
	reqRow.IsLeader = false
	tgtRow.IsLeader = true
	lob := a.lobby
	lob.CreatorID = targetID
	lob.UpdatedAt = time.Now().UTC()

	if err := a.store.SaveLobbyState(ctx, lob, a.tournament, []models.LobbyPlayer{reqRow, tgtRow}, nil); err != nil {
		return nil, err
	}
	a.lobby = lob
	*req = reqRow
	*tgt = tgtRow

	ev := a.event(EventLeadershipChanged, LeadershipChangedPayload{
		NewLeaderID:  targetID,
		PrevLeaderID: requesterID,
	})
	return []Event{ev}, nil
}

// CreateMatches generates the next round's games. On the first call it moves
// the tournament to IN_PROGRESS and the lobby to STARTED. When a single
// enabled player remains in a started bracket, it completes the tournament
// instead and reports that player as winner. Every enabled player's ready
// flag is reset, so a later round requires everyone to re-ready first.
func (a *Aggregate) CreateMatches(ctx context.Context, requesterID uuid.UUID) (*MatchBatch, []Event, error) {
	req, ok := a.players[requesterID]
	if !ok || !req.Enabled || !req.IsLeader {
		return nil, nil, ErrNotLeader
	}
	if !a.allReady() {
		return nil, nil, ErrNotAllReady
	}

	switch a.lobby.Status {
	case models.LobbyCompleted:
		return nil, nil, ErrWrongRoundState
	case models.LobbyStarted:
		if !a.roundComplete(a.tournament.Round) {
			return nil, nil, ErrWrongRoundState
		}
	}

	enabled := a.enabledIDs()
	// A bracket needs at least two players before it can start; the
	// single-remaining-player path only applies once the tournament is
	// underway.
	if a.lobby.Status == models.LobbyPending && len(enabled) < 2 {
		return nil, nil, ErrWrongRoundState
	}
	if len(enabled) == 1 {
		return a.completeTournament(ctx, enabled[0])
	}

	var pairs []bracket.Pair
	var bye uuid.UUID
	if a.lobby.Status == models.LobbyPending {
		pairs, bye = bracket.PairFirstRound(enabled, a.rng)
	} else {
		pool := bracket.NextRoundPool(a.roundGames(a.tournament.Round), enabled)
		pairs, bye = bracket.PairPool(pool)
	}

	round := a.tournament.Round + 1
	games := make([]models.Game, len(pairs))
	for i, p := range pairs {
		games[i] = models.Game{
			ID:           uuid.New(),
			TournamentID: a.tournament.ID,
			Round:        round,
			MatchIndex:   i,
			PlayerOneID:  p.PlayerOne,
			PlayerTwoID:  p.PlayerTwo,
			Status:       models.GamePending,
		}
	}

	lob := a.lobby
	lob.Status = models.LobbyStarted
	lob.UpdatedAt = time.Now().UTC()
	tour := a.tournament
	tour.Status = models.TournamentInProgress
	tour.Round = round

	// Everyone re-readies before the following round.
	changed := make([]models.LobbyPlayer, 0, len(a.players))
	for _, p := range a.players {
		if p.Enabled && p.IsReady {
			row := *p
			row.IsReady = false
			changed = append(changed, row)
		}
	}

	// One write: a failed round creation must not leave game rows behind for
	// a retry to duplicate.
	if err := a.store.SaveLobbyState(ctx, lob, tour, changed, games); err != nil {
		return nil, nil, err
	}
	a.lobby = lob
	a.tournament = tour
	for i := range changed {
		*a.players[changed[i].UserID] = changed[i]
	}
	a.games = append(a.games, games...)

	batch := &MatchBatch{Round: round, Games: games}
	payload := MatchCreatedPayload{Round: round, Games: games}
	if bye != uuid.Nil {
		b := bye
		batch.ByeUserID = &b
		payload.ByeUserID = &b
	}
	return batch, []Event{a.event(EventMatchCreated, payload)}, nil
}

// RecordMatchResult marks a game COMPLETED and disables the loser's
// membership. Duplicate calls for an already-COMPLETED game are no-ops, not
// errors, so the gameplay subsystem may retry safely. When the final game of
// the bracket completes, the tournament and lobby complete with it.
func (a *Aggregate) RecordMatchResult(ctx context.Context, gameID, winnerID, loserID uuid.UUID, score string, playTimeSec int) ([]Event, error) {
	var game *models.Game
	for i := range a.games {
		if a.games[i].ID == gameID {
			game = &a.games[i]
			break
		}
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.TournamentID != a.tournament.ID {
		return nil, ErrWrongTournament
	}
	if game.Status == models.GameCompleted {
		return nil, nil // idempotent retry
	}
	valid := (winnerID == game.PlayerOneID && loserID == game.PlayerTwoID) ||
		(winnerID == game.PlayerTwoID && loserID == game.PlayerOneID)
	if !valid {
		return nil, ErrInvalidResult
	}

	g := *game
	g.Status = models.GameCompleted
	g.WinnerID = &winnerID
	g.LoserID = &loserID
	g.Score = score
	g.PlayTimeSec = playTimeSec

	lob := a.lobby
	lob.UpdatedAt = time.Now().UTC()
	tour := a.tournament
	var changed []models.LobbyPlayer

	// The loser leaves the bracket before the next round is paired.
	var promoted *models.LobbyPlayer
	if lp, ok := a.players[loserID]; ok && lp.Enabled {
		row := *lp
		row.Enabled = false
		row.IsReady = false
		wasLeader := row.IsLeader
		row.IsLeader = false
		changed = append(changed, row)
		if wasLeader {
			if next := a.lowestEnabledExcept(loserID); next != nil {
				nrow := *next
				nrow.IsLeader = true
				promoted = &nrow
				lob.CreatorID = nrow.UserID
				changed = append(changed, nrow)
			}
		}
	}

	roundDone := a.roundCompleteWith(tour.Round, gameID)
	remaining := a.enabledIDsExcept(loserID)
	completed := roundDone && len(remaining) == 1
	if completed {
		w := remaining[0]
		tour.Status = models.TournamentCompleted
		tour.WinnerID = &w
		lob.Status = models.LobbyCompleted
	}

	if err := a.store.SaveLobbyState(ctx, lob, tour, changed, []models.Game{g}); err != nil {
		return nil, err
	}
	*game = g
	a.lobby = lob
	a.tournament = tour
	for i := range changed {
		*a.players[changed[i].UserID] = changed[i]
	}

	events := []Event{a.event(EventMatchResult, MatchResultPayload{Game: g, RoundComplete: roundDone})}
	if promoted != nil {
		events = append(events, a.event(EventLeadershipChanged, LeadershipChangedPayload{
			NewLeaderID:  promoted.UserID,
			PrevLeaderID: loserID,
		}))
	}
	if completed {
		events = append(events, a.event(EventTournamentCompleted, TournamentCompletedPayload{
			TournamentID: tour.ID,
			WinnerID:     tour.WinnerID,
		}))
	}
	return events, nil
}

// Reap finalizes a zombie lobby: STARTED with zero enabled players. Residual
// rows are disabled and both lobby and tournament are marked COMPLETED. A
// no-op on anything else, so the sweep can call it blindly.
func (a *Aggregate) Reap(ctx context.Context) ([]Event, error) {
	if a.lobby.Status != models.LobbyStarted || a.enabledCount() > 0 {
		return nil, nil
	}

	lob := a.lobby
	lob.Status = models.LobbyCompleted
	lob.UpdatedAt = time.Now().UTC()
	tour := a.tournament
	tour.Status = models.TournamentCompleted

	var changed []models.LobbyPlayer
	for _, p := range a.players {
		if p.Enabled || p.IsReady || p.IsLeader {
			row := *p
			row.Enabled = false
			row.IsReady = false
			row.IsLeader = false
			changed = append(changed, row)
		}
	}

	if err := a.store.SaveLobbyState(ctx, lob, tour, changed, nil); err != nil {
		return nil, err
	}
	a.lobby = lob
	a.tournament = tour
	for i := range changed {
		*a.players[changed[i].UserID] = changed[i]
	}

	ev := a.event(EventTournamentCompleted, TournamentCompletedPayload{TournamentID: tour.ID})
	return []Event{ev}, nil
}

// Snapshot returns a deep copy of the full lobby state, ordered by user id.
func (a *Aggregate) Snapshot() Snapshot {
	snap := Snapshot{
		Lobby:      a.lobby,
		Tournament: a.tournament,
		AllReady:   a.allReady(),
	}
	for _, p := range a.players {
		snap.Players = append(snap.Players, *p)
	}
	sortPlayers(snap.Players)
	snap.Games = append(snap.Games, a.games...)
	return snap
}

// Lobby returns a copy of the lobby row.
func (a *Aggregate) Lobby() models.Lobby { return a.lobby }

// Completed reports whether the lobby reached its terminal state.
func (a *Aggregate) Completed() bool { return a.lobby.Status == models.LobbyCompleted }

// Empty reports whether no enabled players remain.
func (a *Aggregate) Empty() bool { return a.enabledCount() == 0 }

func (a *Aggregate) completeTournament(ctx context.Context, winnerID uuid.UUID) (*MatchBatch, []Event, error) {
	lob := a.lobby
	lob.Status = models.LobbyCompleted
	lob.UpdatedAt = time.Now().UTC()
	tour := a.tournament
	tour.Status = models.TournamentCompleted
	tour.WinnerID = &winnerID

	if err := a.store.SaveLobbyState(ctx, lob, tour, nil, nil); err != nil {
		return nil, nil, err
	}
	a.lobby = lob
	a.tournament = tour

	ev := a.event(EventTournamentCompleted, TournamentCompletedPayload{
		TournamentID: tour.ID,
		WinnerID:     tour.WinnerID,
	})
	return &MatchBatch{Completed: true, WinnerID: &winnerID}, []Event{ev}, nil
}

func (a *Aggregate) event(typ EventType, payload any) Event {
	return Event{Type: typ, LobbyID: a.lobby.ID, Payload: payload}
}

func (a *Aggregate) enabledCount() int {
	n := 0
	for _, p := range a.players {
		if p.Enabled {
			n++
		}
	}
	return n
}

func (a *Aggregate) enabledIDs() []uuid.UUID {
	return a.enabledIDsExcept(uuid.Nil)
}

func (a *Aggregate) enabledIDsExcept(skip uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, p := range a.players {
		if p.Enabled && p.UserID != skip {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}

// allReady is recomputed from live rows on every call, never cached.
func (a *Aggregate) allReady() bool {
	count := 0
	for _, p := range a.players {
		if !p.Enabled {
			continue
		}
		if !p.IsReady {
			return false
		}
		count++
	}
	return count >= 1
}

// lowestEnabledExcept returns the enabled player with the smallest user id,
// skipping the given user. Deterministic promotion tie-break.
func (a *Aggregate) lowestEnabledExcept(skip uuid.UUID) *models.LobbyPlayer {
	var best *models.LobbyPlayer
	for _, p := range a.players {
		if !p.Enabled || p.UserID == skip {
			continue
		}
		if best == nil || p.UserID.String() < best.UserID.String() {
			best = p
		}
	}
	return best
}

func (a *Aggregate) roundGames(round int) []models.Game {
	var out []models.Game
	for _, g := range a.games {
		if g.Round == round {
			out = append(out, g)
		}
	}
	return out
}

func (a *Aggregate) roundComplete(round int) bool {
	return a.roundCompleteWith(round, uuid.Nil)
}

// roundCompleteWith treats the given game as COMPLETED, for checking round
// state while a result is still being applied.
func (a *Aggregate) roundCompleteWith(round int, completing uuid.UUID) bool {
	for _, g := range a.games {
		if g.Round != round || g.ID == completing {
			continue
		}
		if g.Status != models.GameCompleted {
			return false
		}
	}
	return true
}
