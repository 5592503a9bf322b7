// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"
)

type createLobbyRequest struct {
	TournamentType int `json:"tournament_type"`
}

// CreateLobbyHandler creates a lobby with its tournament and makes the
// requester leader.
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var req createLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad lobby request payload", http.StatusBadRequest)
		return
	}

	snap, err := s.Registry.CreateLobby(r.Context(), userID, req.TournamentType)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// ListLobbiesHandler returns every lobby that is not COMPLETED.
func (s *Server) ListLobbiesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := authedUser(r); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbies, err := s.Store.ListActiveLobbies(r.Context())
	if err != nil {
		s.Log.WithError(err).Error("failed to list lobbies")
		http.Error(w, "failed to list lobbies", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, lobbies)
}

// GetLobbyHandler returns the full snapshot of one lobby.
func (s *Server) GetLobbyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := authedUser(r); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbyID, err := pathUUID(r, "lobby_id")
	if err != nil {
		http.Error(w, "invalid lobby_id", http.StatusBadRequest)
		return
	}
	snap, err := s.Store.GetLobbyState(r.Context(), lobbyID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// JoinLobbyHandler adds the requester to the lobby.
func (s *Server) JoinLobbyHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbyID, err := pathUUID(r, "lobby_id")
	if err != nil {
		http.Error(w, "invalid lobby_id", http.StatusBadRequest)
		return
	}

	snap, err := s.Registry.Join(r.Context(), lobbyID, userID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// LeaveLobbyHandler disables the requester's membership.
func (s *Server) LeaveLobbyHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbyID, err := pathUUID(r, "lobby_id")
	if err != nil {
		http.Error(w, "invalid lobby_id", http.StatusBadRequest)
		return
	}

	if err := s.Registry.Leave(r.Context(), lobbyID, userID); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleReadyResponse struct {
	IsReady bool `json:"is_ready"`
}

// ToggleReadyHandler flips the requester's ready flag.
func (s *Server) ToggleReadyHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbyID, err := pathUUID(r, "lobby_id")
	if err != nil {
		http.Error(w, "invalid lobby_id", http.StatusBadRequest)
		return
	}

	ready, err := s.Registry.ToggleReady(r.Context(), lobbyID, userID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleReadyResponse{IsReady: ready})
}

type transferLeadershipRequest struct {
	TargetID string `json:"target_id"`
}

// TransferLeadershipHandler hands the leader flag to another enabled member.
func (s *Server) TransferLeadershipHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbyID, err := pathUUID(r, "lobby_id")
	if err != nil {
		http.Error(w, "invalid lobby_id", http.StatusBadRequest)
		return
	}
	var req transferLeadershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad transfer payload", http.StatusBadRequest)
		return
	}
	targetID, err := parseUUIDField(req.TargetID)
	if err != nil {
		http.Error(w, "invalid target_id", http.StatusBadRequest)
		return
	}

	if err := s.Registry.TransferLeadership(r.Context(), lobbyID, userID, targetID); err != nil {
		writeCommandError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateMatchesHandler generates the next round of the bracket.
func (s *Server) CreateMatchesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := authedUser(r)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	lobbyID, err := pathUUID(r, "lobby_id")
	if err != nil {
		http.Error(w, "invalid lobby_id", http.StatusBadRequest)
		return
	}

	batch, err := s.Registry.CreateMatches(r.Context(), lobbyID, userID)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}
