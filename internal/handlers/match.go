// internal/handlers/match.go
package handlers

import (
	"encoding/json"
	"net/http"
)

type matchResultRequest struct {
	GameID      string `json:"game_id"`
	WinnerID    string `json:"winner_id"`
	LoserID     string `json:"loser_id"`
	Score       string `json:"score"`
	PlayTimeSec int    `json:"play_time_sec"`
}

// MatchResultHandler records a finished match. The gameplay subsystem calls
// this; duplicate submissions for the same game succeed without effect.
func (s *Server) MatchResultHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := authedUser(r); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var req matchResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad match result payload", http.StatusBadRequest)
		return
	}
	gameID, err := parseUUIDField(req.GameID)
	if err != nil {
		http.Error(w, "invalid game_id", http.StatusBadRequest)
		return
	}
	winnerID, err := parseUUIDField(req.WinnerID)
	if err != nil {
		http.Error(w, "invalid winner_id", http.StatusBadRequest)
		return
	}
	loserID, err := parseUUIDField(req.LoserID)
	if err != nil {
		http.Error(w, "invalid loser_id", http.StatusBadRequest)
		return
	}

	err = s.Registry.RecordMatchResult(r.Context(), gameID, winnerID, loserID, req.Score, req.PlayTimeSec)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
