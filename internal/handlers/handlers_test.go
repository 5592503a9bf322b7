// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/blue-orion/pongservice/internal/auth"
	"github.com/blue-orion/pongservice/internal/gateway"
	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/blue-orion/pongservice/internal/registry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers is an in-memory UserStore for handler tests.
type memUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[uuid.UUID]models.User), byEmail: make(map[string]uuid.UUID)}
}

func (m *memUsers) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if !user.IsEphemeral {
		hash, err := auth.HashPassword(user.Password)
		if err != nil {
			return err
		}
		user.Password = hash
	}
	m.byID[user.ID] = *user
	if user.Email != "" {
		m.byEmail[user.Email] = user.ID
	}
	return nil
}

func (m *memUsers) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return &u, nil
}

func (m *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("user %s not found", email)
	}
	u := m.byID[id]
	return &u, nil
}

func (m *memUsers) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	u, err := m.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	ok, err := auth.VerifyPassword(password, u.Password)
	if err != nil || !ok {
		return "", fmt.Errorf("invalid credentials")
	}
	return auth.CreateJWT(u.ID.String())
}

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	require.NoError(t, auth.Init())

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := lobby.NewMemStore()
	hub := gateway.NewHub(nil)
	reg := registry.New(log, store, hub, nil)
	srv := NewServer(log, reg, store, newMemUsers())
	return srv, srv.Routes()
}

func tokenFor(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := auth.CreateJWT(userID.String())
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Cookie", "auth_token="+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func createLobby(t *testing.T, mux *http.ServeMux, token string, tournamentType int) lobby.Snapshot {
	t.Helper()
	w := doJSON(t, mux, "POST", "/lobby/create", token, createLobbyRequest{TournamentType: tournamentType})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var snap lobby.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestCreateLobbyRequiresAuth(t *testing.T) {
	_, mux := newTestServer(t)
	w := doJSON(t, mux, "POST", "/lobby/create", "", createLobbyRequest{TournamentType: 4})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateLobbyReturnsSnapshot(t *testing.T) {
	_, mux := newTestServer(t)
	creator := uuid.New()

	snap := createLobby(t, mux, tokenFor(t, creator), 4)

	assert.NotEqual(t, uuid.Nil, snap.Lobby.ID)
	assert.Equal(t, creator, snap.Lobby.CreatorID)
	assert.Equal(t, 4, snap.Lobby.MaxPlayers)
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].IsLeader)
}

func TestCreateLobbyRejectsBadType(t *testing.T) {
	_, mux := newTestServer(t)
	w := doJSON(t, mux, "POST", "/lobby/create", tokenFor(t, uuid.New()), createLobbyRequest{TournamentType: 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var ce commandError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ce))
	assert.Equal(t, "INVALID_TOURNAMENT_TYPE", ce.Code)
}

func TestJoinUnknownLobbyIs404(t *testing.T) {
	_, mux := newTestServer(t)
	w := doJSON(t, mux, "POST", "/lobby/"+uuid.NewString()+"/join", tokenFor(t, uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var ce commandError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ce))
	assert.Equal(t, "LOBBY_NOT_FOUND", ce.Code)
}

func TestJoinFullLobbyIsConflict(t *testing.T) {
	_, mux := newTestServer(t)
	snap := createLobby(t, mux, tokenFor(t, uuid.New()), 2)

	w := doJSON(t, mux, "POST", "/lobby/"+snap.Lobby.ID.String()+"/join", tokenFor(t, uuid.New()), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, "POST", "/lobby/"+snap.Lobby.ID.String()+"/join", tokenFor(t, uuid.New()), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var ce commandError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ce))
	assert.Equal(t, "LOBBY_FULL", ce.Code)
}

func TestTransferLeadershipForbiddenForNonLeader(t *testing.T) {
	_, mux := newTestServer(t)
	creator, member := uuid.New(), uuid.New()
	snap := createLobby(t, mux, tokenFor(t, creator), 4)
	lobbyPath := "/lobby/" + snap.Lobby.ID.String()

	w := doJSON(t, mux, "POST", lobbyPath+"/join", tokenFor(t, member), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, mux, "POST", lobbyPath+"/transfer", tokenFor(t, member),
		transferLeadershipRequest{TargetID: member.String()})
	assert.Equal(t, http.StatusForbidden, w.Code)

	var ce commandError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ce))
	assert.Equal(t, "NOT_LEADER", ce.Code)
}

func TestFullTournamentOverHTTP(t *testing.T) {
	_, mux := newTestServer(t)
	creator, member := uuid.New(), uuid.New()
	snap := createLobby(t, mux, tokenFor(t, creator), 2)
	lobbyPath := "/lobby/" + snap.Lobby.ID.String()

	w := doJSON(t, mux, "POST", lobbyPath+"/join", tokenFor(t, member), nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, u := range []uuid.UUID{creator, member} {
		w = doJSON(t, mux, "POST", lobbyPath+"/ready", tokenFor(t, u), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(t, mux, "POST", lobbyPath+"/matches", tokenFor(t, creator), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var batch lobby.MatchBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Games, 1)

	game := batch.Games[0]
	result := matchResultRequest{
		GameID:      game.ID.String(),
		WinnerID:    game.PlayerOneID.String(),
		LoserID:     game.PlayerTwoID.String(),
		Score:       "11-9",
		PlayTimeSec: 240,
	}
	w = doJSON(t, mux, "POST", "/match/result", tokenFor(t, creator), result)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	// Duplicate submission is an accepted no-op.
	w = doJSON(t, mux, "POST", "/match/result", tokenFor(t, creator), result)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, mux, "GET", lobbyPath, tokenFor(t, creator), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var final lobby.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &final))
	assert.Equal(t, models.LobbyCompleted, final.Lobby.Status)
	require.NotNil(t, final.Tournament.WinnerID)
	assert.Equal(t, game.PlayerOneID, *final.Tournament.WinnerID)
}

func TestListLobbiesExcludesCompleted(t *testing.T) {
	_, mux := newTestServer(t)
	creator := uuid.New()
	createLobby(t, mux, tokenFor(t, creator), 4)

	w := doJSON(t, mux, "GET", "/lobby/list", tokenFor(t, creator), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var lobbies []models.Lobby
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lobbies))
	assert.Len(t, lobbies, 1)
}

func TestUserSignupAndLogin(t *testing.T) {
	_, mux := newTestServer(t)

	w := doJSON(t, mux, "POST", "/users", "", createUserRequest{
		Email: "p1@example.com", Password: "hunter2", Username: "p1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Empty(t, created.Password)

	w = doJSON(t, mux, "POST", "/login", "", loginRequest{Email: "p1@example.com", Password: "hunter2"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	sub, err := auth.AuthenticateJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), sub)

	w = doJSON(t, mux, "POST", "/login", "", loginRequest{Email: "p1@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
