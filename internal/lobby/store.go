// internal/lobby/store.go
package lobby

import (
	"context"
	"sort"

	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
)

// Snapshot is the full authoritative view of one lobby, sent to every new
// gateway subscriber and returned from the command surface.
type Snapshot struct {
	Lobby      models.Lobby         `json:"lobby"`
	Tournament models.Tournament    `json:"tournament"`
	Players    []models.LobbyPlayer `json:"players"`
	Games      []models.Game        `json:"games"`
	AllReady   bool                 `json:"all_ready"`
}

// Clone returns a deep copy. Clients keep and roll back to cloned snapshots.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Players = make([]models.LobbyPlayer, len(s.Players))
	copy(out.Players, s.Players)
	out.Games = make([]models.Game, len(s.Games))
	copy(out.Games, s.Games)
	return out
}

// Store is the persistence seam for lobby state. Implementations must make
// each call atomic; the aggregate persists before it mutates memory or emits
// events, so a failed call never leaves a partially applied command visible.
type Store interface {
	// CreateLobby persists a brand-new lobby, its tournament and its creator
	// membership row in one shot.
	CreateLobby(ctx context.Context, snap Snapshot) error

	// SaveLobbyState upserts the lobby row, tournament row and every given
	// membership and game row in one atomic write. Games upsert by id, so the
	// same call covers inserting a fresh round and finishing a game.
	SaveLobbyState(ctx context.Context, l models.Lobby, t models.Tournament, players []models.LobbyPlayer, games []models.Game) error

	// GetLobbyState loads the lobby, tournament and all membership rows.
	// Returns ErrLobbyNotFound if the lobby does not exist.
	GetLobbyState(ctx context.Context, lobbyID uuid.UUID) (*Snapshot, error)

	ListGames(ctx context.Context, tournamentID uuid.UUID) ([]models.Game, error)

	// LobbyIDForGame resolves the owning lobby of a game so match results can
	// be routed through the same per-lobby serialization point. Returns
	// ErrGameNotFound when unknown.
	LobbyIDForGame(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error)

	// ListActiveLobbies returns all lobbies that are not COMPLETED.
	ListActiveLobbies(ctx context.Context) ([]models.Lobby, error)

	// ListZombieLobbies returns STARTED lobbies with zero enabled players,
	// for the lifecycle sweep.
	ListZombieLobbies(ctx context.Context) ([]models.Lobby, error)

	// UserInActiveLobby reports whether the user has an enabled membership in
	// any non-COMPLETED lobby.
	UserInActiveLobby(ctx context.Context, userID uuid.UUID) (bool, error)
}

// sortPlayers orders membership rows by user id so snapshots and promotion
// scans are deterministic.
func sortPlayers(players []models.LobbyPlayer) {
	sort.Slice(players, func(i, j int) bool {
		return players[i].UserID.String() < players[j].UserID.String()
	})
}
