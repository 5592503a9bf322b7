// internal/models/game.go
package models

import "github.com/google/uuid"

// GameStatus tracks a single match's lifecycle. A COMPLETED game is
// immutable.
type GameStatus string

const (
	GamePending    GameStatus = "PENDING"
	GameInProgress GameStatus = "IN_PROGRESS"
	GameCompleted  GameStatus = "COMPLETED"
)

// Game is one match of a tournament round, created in batches when a round
// is generated. Bye players get no Game row; their advancement is implied by
// their absence from the round.
type Game struct {
	ID           uuid.UUID  `json:"id"`
	TournamentID uuid.UUID  `json:"tournament_id"`
	Round        int        `json:"round"`
	MatchIndex   int        `json:"match_index"` // position within the round, 0-based
	PlayerOneID  uuid.UUID  `json:"player_one_id"`
	PlayerTwoID  uuid.UUID  `json:"player_two_id"`
	Status       GameStatus `json:"status"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty"`
	LoserID      *uuid.UUID `json:"loser_id,omitempty"`
	Score        string     `json:"score,omitempty"`
	PlayTimeSec  int        `json:"play_time_sec,omitempty"`
}
