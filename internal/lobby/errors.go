// internal/lobby/errors.go
package lobby

import "errors"

// Command errors. Conflict errors carry a stable wire code so clients can
// show a precise message; none of them leaves partial state behind.
var (
	ErrLobbyNotFound         = errors.New("lobby not found")
	ErrLobbyAlreadyStarted   = errors.New("lobby already started")
	ErrAlreadyInLobby        = errors.New("user already in lobby")
	ErrAlreadyInOtherLobby   = errors.New("user already in another active lobby")
	ErrLobbyFull             = errors.New("lobby is full")
	ErrNotMember             = errors.New("user is not a member of the lobby")
	ErrNotLeader             = errors.New("user is not the lobby leader")
	ErrTargetNotMember       = errors.New("target is not an enabled member of the lobby")
	ErrSelfTransfer          = errors.New("cannot transfer leadership to yourself")
	ErrNotAllReady           = errors.New("not all players are ready")
	ErrWrongRoundState       = errors.New("current round is not complete")
	ErrGameNotFound          = errors.New("game not found")
	ErrWrongTournament       = errors.New("game does not belong to this tournament")
	ErrInvalidResult         = errors.New("winner and loser do not match the game's players")
	ErrInvalidTournamentType = errors.New("invalid tournament type")

	// ErrLobbyBusy is retryable: the lobby's command queue did not accept the
	// command within the bounded wait.
	ErrLobbyBusy = errors.New("lobby is busy, retry")
)

// ErrorCode maps a command error to its stable wire code. Unknown errors map
// to INTERNAL.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrLobbyNotFound):
		return "LOBBY_NOT_FOUND"
	case errors.Is(err, ErrLobbyAlreadyStarted):
		return "LOBBY_ALREADY_STARTED"
	case errors.Is(err, ErrAlreadyInLobby):
		return "ALREADY_IN_LOBBY"
	case errors.Is(err, ErrAlreadyInOtherLobby):
		return "ALREADY_IN_OTHER_LOBBY"
	case errors.Is(err, ErrLobbyFull):
		return "LOBBY_FULL"
	case errors.Is(err, ErrNotMember):
		return "NOT_A_MEMBER"
	case errors.Is(err, ErrNotLeader):
		return "NOT_LEADER"
	case errors.Is(err, ErrTargetNotMember):
		return "TARGET_NOT_MEMBER"
	case errors.Is(err, ErrSelfTransfer):
		return "SELF_TRANSFER"
	case errors.Is(err, ErrNotAllReady):
		return "NOT_ALL_READY"
	case errors.Is(err, ErrWrongRoundState):
		return "WRONG_ROUND_STATE"
	case errors.Is(err, ErrGameNotFound):
		return "GAME_NOT_FOUND"
	case errors.Is(err, ErrWrongTournament):
		return "WRONG_TOURNAMENT"
	case errors.Is(err, ErrInvalidResult):
		return "INVALID_RESULT"
	case errors.Is(err, ErrInvalidTournamentType):
		return "INVALID_TOURNAMENT_TYPE"
	case errors.Is(err, ErrLobbyBusy):
		return "LOBBY_BUSY"
	default:
		return "INTERNAL"
	}
}
