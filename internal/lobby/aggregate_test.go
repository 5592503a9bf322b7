// internal/lobby/aggregate_test.go
package lobby

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userN builds a UUID whose string form orders by n, so "lowest user id"
// promotion is predictable in tests.
func userN(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// setupLobby creates a lobby with the given creator plus joiners, on a fresh
// MemStore, with a seeded shuffle.
func setupLobby(t *testing.T, tournamentType int, users ...uuid.UUID) (*Aggregate, *MemStore) {
	t.Helper()
	ctx := context.Background()
	store := NewMemStore()

	agg, events, err := New(ctx, store, users[0], tournamentType)
	require.NoError(t, err)
	require.Len(t, events, 1)
	agg.rng = rand.New(rand.NewSource(99))

	for _, u := range users[1:] {
		_, err := agg.Join(ctx, u)
		require.NoError(t, err)
	}
	return agg, store
}

func readyAll(t *testing.T, agg *Aggregate) {
	t.Helper()
	for _, p := range agg.Snapshot().Players {
		if p.Enabled && !p.IsReady {
			_, _, err := agg.ToggleReady(context.Background(), p.UserID)
			require.NoError(t, err)
		}
	}
}

func assertOneLeader(t *testing.T, agg *Aggregate) {
	t.Helper()
	leaders := 0
	enabled := 0
	for _, p := range agg.Snapshot().Players {
		if !p.Enabled {
			assert.False(t, p.IsLeader, "disabled player %s holds leader flag", p.UserID)
			continue
		}
		enabled++
		if p.IsLeader {
			leaders++
		}
	}
	if enabled > 0 {
		assert.Equal(t, 1, leaders, "expected exactly one enabled leader")
	} else {
		assert.Equal(t, 0, leaders)
	}
}

func TestCreateValidatesTournamentType(t *testing.T) {
	store := NewMemStore()
	_, _, err := New(context.Background(), store, userN(1), 5)
	assert.ErrorIs(t, err, ErrInvalidTournamentType)
}

func TestCreatorCannotBeInTwoActiveLobbies(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	_, _, err := New(ctx, store, userN(1), 4)
	require.NoError(t, err)

	_, _, err = New(ctx, store, userN(1), 4)
	assert.ErrorIs(t, err, ErrAlreadyInOtherLobby)
}

func TestJoinFailures(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 2, userN(1), userN(2))

	_, err := agg.Join(ctx, userN(2))
	assert.ErrorIs(t, err, ErrAlreadyInLobby)

	_, err = agg.Join(ctx, userN(3))
	assert.ErrorIs(t, err, ErrLobbyFull)

	readyAll(t, agg)
	_, _, err = agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)
	_, err = agg.Join(ctx, userN(3))
	assert.ErrorIs(t, err, ErrLobbyAlreadyStarted)
}

func TestEnabledCountNeverExceedsMaxPlayers(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))

	// Churn: leaves and rejoins must keep the capacity invariant at every step.
	for i := 0; i < 20; i++ {
		u := userN(1 + i%4)
		if i%2 == 0 {
			_, _ = agg.Leave(ctx, u)
		} else {
			_, _ = agg.Join(ctx, u)
		}
		count := 0
		for _, p := range agg.Snapshot().Players {
			if p.Enabled {
				count++
			}
		}
		assert.LessOrEqual(t, count, 4)
		assertOneLeader(t, agg)
	}
}

func TestRejoinReenablesExistingRow(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2))

	_, err := agg.Leave(ctx, userN(2))
	require.NoError(t, err)
	_, err = agg.Join(ctx, userN(2))
	require.NoError(t, err)

	// One row per user: no duplicate created on rejoin.
	snap := agg.Snapshot()
	require.Len(t, snap.Players, 2)
	for _, p := range snap.Players {
		assert.True(t, p.Enabled)
		assert.False(t, p.IsReady, "rejoined player must not be ready")
	}
}

func TestLeaderLeavePromotesLowestUserID(t *testing.T) {
	// Scenario B: leader 7 leaves {7, 3, 9}; user 3 becomes leader.
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(7), userN(3), userN(9))

	events, err := agg.Leave(ctx, userN(7))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventPlayerLeft, events[0].Type)
	assert.Equal(t, EventLeadershipChanged, events[1].Type)

	lead := events[1].Payload.(LeadershipChangedPayload)
	assert.Equal(t, userN(3), lead.NewLeaderID)
	assert.Equal(t, userN(3), agg.Lobby().CreatorID)
	assertOneLeader(t, agg)
}

func TestToggleReadyRecomputesAllReady(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2))

	ready, events, err := agg.ToggleReady(ctx, userN(1))
	require.NoError(t, err)
	assert.True(t, ready)
	assert.False(t, events[0].Payload.(ReadyChangedPayload).AllReady)

	_, events, err = agg.ToggleReady(ctx, userN(2))
	require.NoError(t, err)
	assert.True(t, events[0].Payload.(ReadyChangedPayload).AllReady)

	// Toggling off flips allReady back.
	ready, events, err = agg.ToggleReady(ctx, userN(1))
	require.NoError(t, err)
	assert.False(t, ready)
	assert.False(t, events[0].Payload.(ReadyChangedPayload).AllReady)

	_, _, err = agg.ToggleReady(ctx, userN(5))
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestTransferLeadership(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3))

	_, err := agg.TransferLeadership(ctx, userN(2), userN(3))
	assert.ErrorIs(t, err, ErrNotLeader)

	_, err = agg.TransferLeadership(ctx, userN(1), userN(1))
	assert.ErrorIs(t, err, ErrSelfTransfer)

	_, err = agg.TransferLeadership(ctx, userN(1), userN(9))
	assert.ErrorIs(t, err, ErrTargetNotMember)

	events, err := agg.TransferLeadership(ctx, userN(1), userN(2))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, userN(2), agg.Lobby().CreatorID)
	assertOneLeader(t, agg)
}

func TestCreateMatchesRequiresAllReady(t *testing.T) {
	ctx := context.Background()

	// Property: with any strict subset of players ready, the command is
	// rejected and no games exist.
	rng := rand.New(rand.NewSource(5))
	for trial := 0; trial < 25; trial++ {
		agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))
		readyCount := rng.Intn(4) // 0..3 of 4 players ready
		for i := 1; i <= readyCount; i++ {
			_, _, err := agg.ToggleReady(ctx, userN(i))
			require.NoError(t, err)
		}

		_, _, err := agg.CreateMatches(ctx, userN(1))
		assert.ErrorIs(t, err, ErrNotAllReady)
		assert.Empty(t, agg.Snapshot().Games)
	}
}

// faultStore fails the next state write on demand, for checking that a
// failed command leaves no partial rows behind.
type faultStore struct {
	*MemStore
	failNext bool
}

func (s *faultStore) SaveLobbyState(ctx context.Context, l models.Lobby, t models.Tournament, players []models.LobbyPlayer, games []models.Game) error {
	if s.failNext {
		s.failNext = false
		return fmt.Errorf("state write failed")
	}
	return s.MemStore.SaveLobbyState(ctx, l, t, players, games)
}

func TestCreateMatchesFailedWriteLeavesNoGames(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{MemStore: NewMemStore()}
	agg, _, err := New(ctx, store, userN(1), 2)
	require.NoError(t, err)
	agg.rng = rand.New(rand.NewSource(99))
	_, err = agg.Join(ctx, userN(2))
	require.NoError(t, err)
	readyAll(t, agg)

	store.failNext = true
	_, _, err = agg.CreateMatches(ctx, userN(1))
	require.Error(t, err)

	persisted, err := store.GetLobbyState(ctx, agg.Lobby().ID)
	require.NoError(t, err)
	assert.Empty(t, persisted.Games, "failed round creation must commit no games")
	assert.Equal(t, 0, persisted.Tournament.Round)
	assert.Equal(t, models.LobbyPending, persisted.Lobby.Status)

	// The retry starts the round exactly once.
	batch, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)
	require.Len(t, batch.Games, 1)
	persisted, err = store.GetLobbyState(ctx, agg.Lobby().ID)
	require.NoError(t, err)
	assert.Len(t, persisted.Games, 1)
	assert.Equal(t, 1, persisted.Tournament.Round)
}

func TestSoloPendingLobbyCannotStart(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 2, userN(1))
	readyAll(t, agg)

	// One ready player is not a bracket; the lobby must not jump straight
	// from PENDING to COMPLETED.
	_, _, err := agg.CreateMatches(ctx, userN(1))
	assert.ErrorIs(t, err, ErrWrongRoundState)

	snap := agg.Snapshot()
	assert.Equal(t, models.LobbyPending, snap.Lobby.Status)
	assert.Equal(t, models.TournamentPending, snap.Tournament.Status)
	assert.Nil(t, snap.Tournament.WinnerID)
}

func TestCreateMatchesRequiresLeader(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 2, userN(1), userN(2))
	readyAll(t, agg)

	_, _, err := agg.CreateMatches(ctx, userN(2))
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestNoAdvancementWhileRoundIncomplete(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))
	readyAll(t, agg)

	batch, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)
	require.Len(t, batch.Games, 2)

	// Complete only one of the two round-1 games.
	g := batch.Games[0]
	_, err = agg.RecordMatchResult(ctx, g.ID, g.PlayerOneID, g.PlayerTwoID, "11-7", 90)
	require.NoError(t, err)

	readyAll(t, agg)
	_, _, err = agg.CreateMatches(ctx, agg.Lobby().CreatorID)
	assert.ErrorIs(t, err, ErrWrongRoundState)
	assert.Equal(t, 1, agg.Snapshot().Tournament.Round, "round must not advance")
}

func TestRecordMatchResultIsIdempotent(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))
	readyAll(t, agg)
	batch, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)

	g := batch.Games[0]
	events, err := agg.RecordMatchResult(ctx, g.ID, g.PlayerOneID, g.PlayerTwoID, "11-3", 60)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	before := agg.Snapshot()
	events, err = agg.RecordMatchResult(ctx, g.ID, g.PlayerOneID, g.PlayerTwoID, "11-3", 60)
	require.NoError(t, err, "duplicate result must not be an error")
	assert.Empty(t, events, "duplicate result must emit nothing")
	assert.Equal(t, before, agg.Snapshot(), "duplicate result must not change state")
	assertOneLeader(t, agg)
}

func TestRecordMatchResultValidation(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))
	readyAll(t, agg)
	batch, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)

	_, err = agg.RecordMatchResult(ctx, uuid.New(), userN(1), userN(2), "", 0)
	assert.ErrorIs(t, err, ErrGameNotFound)

	g := batch.Games[0]
	_, err = agg.RecordMatchResult(ctx, g.ID, g.PlayerOneID, uuid.New(), "", 0)
	assert.ErrorIs(t, err, ErrInvalidResult)
}

func TestFourPlayerTournamentEndToEnd(t *testing.T) {
	// Scenario A: 4 players, two rounds, one champion.
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))
	readyAll(t, agg)

	batch, events, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)
	require.Len(t, batch.Games, 2)
	assert.Equal(t, 1, batch.Round)
	assert.Equal(t, models.LobbyStarted, agg.Lobby().Status)
	assert.Equal(t, EventMatchCreated, events[0].Type)

	// Round 1: player one wins both games.
	for _, g := range batch.Games {
		_, err := agg.RecordMatchResult(ctx, g.ID, g.PlayerOneID, g.PlayerTwoID, "11-5", 120)
		require.NoError(t, err)
	}
	snap := agg.Snapshot()
	enabled := 0
	for _, p := range snap.Players {
		if p.Enabled {
			enabled++
		}
	}
	require.Equal(t, 2, enabled, "both losers must be disabled")

	readyAll(t, agg)
	final, _, err := agg.CreateMatches(ctx, agg.Lobby().CreatorID)
	require.NoError(t, err)
	require.Len(t, final.Games, 1)
	assert.Equal(t, 2, final.Round)

	fg := final.Games[0]
	events, err = agg.RecordMatchResult(ctx, fg.ID, fg.PlayerTwoID, fg.PlayerOneID, "11-9", 300)
	require.NoError(t, err)

	snap = agg.Snapshot()
	assert.Equal(t, models.TournamentCompleted, snap.Tournament.Status)
	assert.Equal(t, models.LobbyCompleted, snap.Lobby.Status)
	require.NotNil(t, snap.Tournament.WinnerID)
	assert.Equal(t, fg.PlayerTwoID, *snap.Tournament.WinnerID)

	last := events[len(events)-1]
	assert.Equal(t, EventTournamentCompleted, last.Type)
}

func TestThreePlayerTournamentWithBye(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 4, userN(1), userN(2), userN(3))
	readyAll(t, agg)

	batch, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)
	require.Len(t, batch.Games, 1, "three players pair into one game plus a bye")
	require.NotNil(t, batch.ByeUserID)

	g := batch.Games[0]
	_, err = agg.RecordMatchResult(ctx, g.ID, g.PlayerOneID, g.PlayerTwoID, "11-2", 80)
	require.NoError(t, err)

	// Winner and bye player remain; the final pairs them.
	readyAll(t, agg)
	final, _, err := agg.CreateMatches(ctx, agg.Lobby().CreatorID)
	require.NoError(t, err)
	require.Len(t, final.Games, 1)
	assert.Nil(t, final.ByeUserID)
	assert.Equal(t, 2, final.Round)

	participants := map[uuid.UUID]bool{
		final.Games[0].PlayerOneID: true,
		final.Games[0].PlayerTwoID: true,
	}
	assert.True(t, participants[g.PlayerOneID], "round-1 winner plays the final")
	assert.True(t, participants[*batch.ByeUserID], "bye player plays the final")
}

func TestLoadRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	agg, store := setupLobby(t, 4, userN(1), userN(2), userN(3), userN(4))
	readyAll(t, agg)
	batch, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)

	reloaded, err := Load(ctx, store, agg.Lobby().ID)
	require.NoError(t, err)
	assert.Equal(t, agg.Snapshot(), reloaded.Snapshot())
	require.Len(t, reloaded.Snapshot().Games, len(batch.Games))

	_, err = Load(ctx, store, uuid.New())
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestReapZombieLobby(t *testing.T) {
	ctx := context.Background()
	agg, _ := setupLobby(t, 2, userN(1), userN(2))
	readyAll(t, agg)
	_, _, err := agg.CreateMatches(ctx, userN(1))
	require.NoError(t, err)

	// Everyone leaves mid-tournament; the lobby stays STARTED until reaped.
	_, err = agg.Leave(ctx, userN(1))
	require.NoError(t, err)
	_, err = agg.Leave(ctx, userN(2))
	require.NoError(t, err)
	require.Equal(t, models.LobbyStarted, agg.Lobby().Status)

	events, err := agg.Reap(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventTournamentCompleted, events[0].Type)

	snap := agg.Snapshot()
	assert.Equal(t, models.LobbyCompleted, snap.Lobby.Status)
	assert.Equal(t, models.TournamentCompleted, snap.Tournament.Status)

	// Reap on a healthy lobby is a no-op.
	healthy, _ := setupLobby(t, 2, userN(5), userN(6))
	events, err = healthy.Reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}
