// internal/handlers/routes.go
package handlers

import "net/http"

// Routes builds the full command surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", s.CreateUserHandler)
	mux.HandleFunc("POST /login", s.LoginHandler)

	mux.HandleFunc("POST /lobby/create", s.CreateLobbyHandler)
	mux.HandleFunc("GET /lobby/list", s.ListLobbiesHandler)
	mux.HandleFunc("GET /lobby/{lobby_id}", s.GetLobbyHandler)
	mux.HandleFunc("POST /lobby/{lobby_id}/join", s.JoinLobbyHandler)
	mux.HandleFunc("POST /lobby/{lobby_id}/leave", s.LeaveLobbyHandler)
	mux.HandleFunc("POST /lobby/{lobby_id}/ready", s.ToggleReadyHandler)
	mux.HandleFunc("POST /lobby/{lobby_id}/transfer", s.TransferLeadershipHandler)
	mux.HandleFunc("POST /lobby/{lobby_id}/matches", s.CreateMatchesHandler)

	mux.HandleFunc("POST /match/result", s.MatchResultHandler)

	mux.HandleFunc("GET /lobby/ws/{lobby_id}", s.LobbyWSHandler())

	return mux
}
