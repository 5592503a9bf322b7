// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blue-orion/pongservice/internal/auth"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// CreateUserHandler registers a permanent account.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user := models.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	}
	if err := s.Users.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		s.Log.WithError(err).Error("failed to create user")
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}

	user.Password = ""
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler verifies credentials and sets the auth_token cookie. The
// token is also returned in the body for non-browser clients.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	token, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		s.Log.WithError(err).Warn("failed login attempt")
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// EnsureEphemeralUser resolves the requester from the auth_token cookie, or
// creates a guest account and sets a fresh cookie when there is no usable
// token. Guests can later claim their account with real credentials.
func (s *Server) EnsureEphemeralUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, error) {
	token := extractCookieToken(r.Header.Get("Cookie"), "auth_token")
	if token != "" {
		if sub, err := auth.AuthenticateJWT(token); err == nil {
			return uuid.Parse(sub)
		}
	}

	guest := models.User{Username: "Guest", IsEphemeral: true}
	if err := s.Users.CreateUser(r.Context(), &guest); err != nil {
		return uuid.Nil, err
	}
	newToken, err := auth.CreateJWT(guest.ID.String())
	if err != nil {
		return uuid.Nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    newToken,
		HttpOnly: true,
		Path:     "/",
	})
	return guest.ID, nil
}
