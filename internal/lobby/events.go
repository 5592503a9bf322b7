// internal/lobby/events.go
package lobby

import (
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
)

// EventType identifies a broadcast event. Every accepted mutation emits
// exactly one event; broadcast happens strictly after durable commit.
type EventType string

const (
	EventPlayerJoined        EventType = "player_joined"
	EventPlayerLeft          EventType = "player_left"
	EventReadyChanged        EventType = "ready_changed"
	EventLeadershipChanged   EventType = "leadership_changed"
	EventMatchCreated        EventType = "match_created"
	EventMatchResult         EventType = "match_result"
	EventTournamentCompleted EventType = "tournament_completed"
	EventChat                EventType = "chat"
)

// Event is the broadcast envelope. ServerSeq is stamped by the gateway when
// the event is published; it increases monotonically per lobby so a
// reconnecting client can detect gaps.
type Event struct {
	Type      EventType `json:"type"`
	LobbyID   uuid.UUID `json:"lobby_id"`
	ServerSeq int64     `json:"server_sequence"`
	Payload   any       `json:"payload"`
}

// PlayerJoinedPayload carries the joining player's full row so clients can
// apply the change without a fetch.
type PlayerJoinedPayload struct {
	Player      models.LobbyPlayer `json:"player"`
	PlayerCount int                `json:"player_count"`
}

type PlayerLeftPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	PlayerCount int       `json:"player_count"`
}

type ReadyChangedPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	IsReady  bool      `json:"is_ready"`
	AllReady bool      `json:"all_ready"`
}

type LeadershipChangedPayload struct {
	NewLeaderID  uuid.UUID `json:"new_leader_id"`
	PrevLeaderID uuid.UUID `json:"prev_leader_id"`
}

type MatchCreatedPayload struct {
	Round     int           `json:"round"`
	Games     []models.Game `json:"games"`
	ByeUserID *uuid.UUID    `json:"bye_user_id,omitempty"`
}

type MatchResultPayload struct {
	Game models.Game `json:"game"`

	// RoundComplete means every game of the current round is COMPLETED and
	// the round is eligible for advancement by a fresh create-matches call.
	RoundComplete bool `json:"round_complete"`
}

type TournamentCompletedPayload struct {
	TournamentID uuid.UUID  `json:"tournament_id"`
	WinnerID     *uuid.UUID `json:"winner_id,omitempty"`
}

type ChatPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Msg      string    `json:"msg"`
	Ts       int64     `json:"ts"`
}
