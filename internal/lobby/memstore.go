// internal/lobby/memstore.go
package lobby

import (
	"context"
	"sync"

	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
)

// MemStore is a thread-safe in-memory Store. It backs tests and the
// ephemeral (no database) deployment mode.
type MemStore struct {
	mu          sync.Mutex
	lobbies     map[uuid.UUID]models.Lobby
	tournaments map[uuid.UUID]models.Tournament
	players     map[uuid.UUID][]models.LobbyPlayer // lobbyID -> rows
	games       map[uuid.UUID][]models.Game        // tournamentID -> rows
	gameLobby   map[uuid.UUID]uuid.UUID            // gameID -> lobbyID
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		lobbies:     make(map[uuid.UUID]models.Lobby),
		tournaments: make(map[uuid.UUID]models.Tournament),
		players:     make(map[uuid.UUID][]models.LobbyPlayer),
		games:       make(map[uuid.UUID][]models.Game),
		gameLobby:   make(map[uuid.UUID]uuid.UUID),
	}
}

func (s *MemStore) CreateLobby(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[snap.Lobby.ID] = snap.Lobby
	s.tournaments[snap.Tournament.ID] = snap.Tournament
	rows := make([]models.LobbyPlayer, len(snap.Players))
	copy(rows, snap.Players)
	s.players[snap.Lobby.ID] = rows
	return nil
}

func (s *MemStore) SaveLobbyState(ctx context.Context, l models.Lobby, t models.Tournament, players []models.LobbyPlayer, games []models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[l.ID] = l
	s.tournaments[t.ID] = t

	rows := s.players[l.ID]
	for _, p := range players {
		replaced := false
		for i := range rows {
			if rows[i].UserID == p.UserID {
				rows[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			rows = append(rows, p)
		}
	}
	s.players[l.ID] = rows

	for _, g := range games {
		existing := s.games[g.TournamentID]
		replaced := false
		for i := range existing {
			if existing[i].ID == g.ID {
				existing[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, g)
			s.gameLobby[g.ID] = l.ID
		}
		s.games[g.TournamentID] = existing
	}
	return nil
}

func (s *MemStore) GetLobbyState(ctx context.Context, lobbyID uuid.UUID) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[lobbyID]
	if !ok {
		return nil, ErrLobbyNotFound
	}
	t := s.tournaments[l.TournamentID]
	snap := Snapshot{Lobby: l, Tournament: t}
	snap.Players = append(snap.Players, s.players[lobbyID]...)
	snap.Games = append(snap.Games, s.games[l.TournamentID]...)
	sortPlayers(snap.Players)
	return &snap, nil
}

func (s *MemStore) ListGames(ctx context.Context, tournamentID uuid.UUID) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Game, len(s.games[tournamentID]))
	copy(out, s.games[tournamentID])
	return out, nil
}

func (s *MemStore) LobbyIDForGame(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lid, ok := s.gameLobby[gameID]
	if !ok {
		return uuid.Nil, ErrGameNotFound
	}
	return lid, nil
}

func (s *MemStore) ListActiveLobbies(ctx context.Context) ([]models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lobby
	for _, l := range s.lobbies {
		if l.Status != models.LobbyCompleted {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemStore) ListZombieLobbies(ctx context.Context) ([]models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lobby
	for id, l := range s.lobbies {
		if l.Status != models.LobbyStarted {
			continue
		}
		enabled := 0
		for _, p := range s.players[id] {
			if p.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemStore) UserInActiveLobby(ctx context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for lid, l := range s.lobbies {
		if l.Status == models.LobbyCompleted {
			continue
		}
		for _, p := range s.players[lid] {
			if p.UserID == userID && p.Enabled {
				return true, nil
			}
		}
	}
	return false, nil
}
