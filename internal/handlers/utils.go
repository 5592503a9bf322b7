// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/blue-orion/pongservice/internal/auth"
	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/google/uuid"
)

// extractCookieToken extracts a named cookie value from the "Cookie" header,
// or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authedUser resolves the requesting user from the auth_token cookie.
func authedUser(r *http.Request) (uuid.UUID, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token == "" {
		return uuid.Nil, errors.New("missing auth_token")
	}
	sub, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(sub)
}

// pathUUID parses a {name} path value as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(name))
}

func parseUUIDField(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, errors.New("empty uuid")
	}
	return uuid.Parse(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type commandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeCommandError maps a rejected command to its wire code and an HTTP
// status. Rejections never leave partial state, so everything conflict-like
// is safe for the client to retry after refreshing its view.
func writeCommandError(w http.ResponseWriter, err error) {
	code := lobby.ErrorCode(err)
	status := http.StatusConflict
	switch code {
	case "LOBBY_NOT_FOUND", "GAME_NOT_FOUND":
		status = http.StatusNotFound
	case "NOT_A_MEMBER", "NOT_LEADER", "TARGET_NOT_MEMBER":
		status = http.StatusForbidden
	case "INVALID_TOURNAMENT_TYPE", "INVALID_RESULT", "SELF_TRANSFER":
		status = http.StatusBadRequest
	case "LOBBY_BUSY":
		status = http.StatusServiceUnavailable
	case "INTERNAL":
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, commandError{Code: code, Message: err.Error()})
}
