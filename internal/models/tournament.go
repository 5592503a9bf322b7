// internal/models/tournament.go
package models

import "github.com/google/uuid"

// TournamentStatus tracks a tournament's lifecycle.
type TournamentStatus string

const (
	TournamentPending    TournamentStatus = "PENDING"
	TournamentInProgress TournamentStatus = "IN_PROGRESS"
	TournamentCompleted  TournamentStatus = "COMPLETED"
)

// ValidTournamentTypes are the supported bracket sizes.
var ValidTournamentTypes = map[int]bool{2: true, 4: true, 8: true, 16: true}

// Tournament is a single-elimination bracket owned by exactly one lobby.
// Round is the number of the most recently generated round; it starts at 0
// and only ever increases.
type Tournament struct {
	ID     uuid.UUID        `json:"id"`
	Type   int              `json:"type"` // bracket size: 2, 4, 8 or 16 players
	Status TournamentStatus `json:"status"`
	Round  int              `json:"round"`

	// WinnerID is set once, when the tournament completes with a champion.
	WinnerID *uuid.UUID `json:"winner_id,omitempty"`
}
