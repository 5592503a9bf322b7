// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LobbyStatus tracks the lifecycle of a lobby. Transitions are strictly
// PENDING -> STARTED -> COMPLETED; no skipping, no reverse.
type LobbyStatus string

const (
	LobbyPending   LobbyStatus = "PENDING"
	LobbyStarted   LobbyStatus = "STARTED"
	LobbyCompleted LobbyStatus = "COMPLETED"
)

// Lobby represents a row in the lobbies table. Each lobby owns exactly one
// tournament for its lifetime.
type Lobby struct {
	ID           uuid.UUID   `json:"id"`
	TournamentID uuid.UUID   `json:"tournament_id"`
	MaxPlayers   int         `json:"max_players"`
	Status       LobbyStatus `json:"status"`

	// CreatorID is the current leader, not the original creator. It is kept
	// in sync with the single lobby_players row that has is_leader = true.
	CreatorID uuid.UUID `json:"creator_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LobbyPlayer represents a (lobby, user) membership row. Membership is soft:
// leaving or losing disables the row instead of deleting it, which preserves
// history and lets a disconnected player silently rejoin.
type LobbyPlayer struct {
	LobbyID  uuid.UUID `json:"lobby_id"`
	UserID   uuid.UUID `json:"user_id"`
	IsReady  bool      `json:"is_ready"`
	IsLeader bool      `json:"is_leader"`
	Enabled  bool      `json:"enabled"`
}
