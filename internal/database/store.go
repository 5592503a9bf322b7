// internal/database/store.go
package database

import (
	"context"
	"errors"

	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres implementation of the lobby persistence seam. Every
// method that writes more than one row runs in a single transaction, since
// the aggregate relies on each call being all-or-nothing.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const upsertLobbyQ = `
INSERT INTO lobbies (id, tournament_id, max_players, status, creator_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	creator_id = EXCLUDED.creator_id,
	updated_at = EXCLUDED.updated_at
`

const upsertTournamentQ = `
INSERT INTO tournaments (id, type, status, round, winner_id)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	round = EXCLUDED.round,
	winner_id = EXCLUDED.winner_id
`

const upsertPlayerQ = `
INSERT INTO lobby_players (lobby_id, user_id, is_ready, is_leader, enabled)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (lobby_id, user_id) DO UPDATE SET
	is_ready = EXCLUDED.is_ready,
	is_leader = EXCLUDED.is_leader,
	enabled = EXCLUDED.enabled
`

const upsertGameQ = `
INSERT INTO games (id, tournament_id, round, match_index, player_one_id, player_two_id,
                   status, winner_id, loser_id, score, play_time_sec)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	winner_id = EXCLUDED.winner_id,
	loser_id = EXCLUDED.loser_id,
	score = EXCLUDED.score,
	play_time_sec = EXCLUDED.play_time_sec
`

func (s *Store) CreateLobby(ctx context.Context, snap lobby.Snapshot) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := execTournament(ctx, tx, snap.Tournament); err != nil {
			return err
		}
		if err := execLobby(ctx, tx, snap.Lobby); err != nil {
			return err
		}
		for _, p := range snap.Players {
			if err := execPlayer(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SaveLobbyState(ctx context.Context, l models.Lobby, t models.Tournament, players []models.LobbyPlayer, games []models.Game) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := execTournament(ctx, tx, t); err != nil {
			return err
		}
		if err := execLobby(ctx, tx, l); err != nil {
			return err
		}
		for _, p := range players {
			if err := execPlayer(ctx, tx, p); err != nil {
				return err
			}
		}
		for _, g := range games {
			if err := execGame(ctx, tx, g); err != nil {
				return err
			}
		}
		return nil
	})
}

func execLobby(ctx context.Context, tx pgx.Tx, l models.Lobby) error {
	_, err := tx.Exec(ctx, upsertLobbyQ,
		l.ID, l.TournamentID, l.MaxPlayers, l.Status, l.CreatorID, l.CreatedAt, l.UpdatedAt)
	return err
}

func execTournament(ctx context.Context, tx pgx.Tx, t models.Tournament) error {
	_, err := tx.Exec(ctx, upsertTournamentQ, t.ID, t.Type, t.Status, t.Round, t.WinnerID)
	return err
}

func execPlayer(ctx context.Context, tx pgx.Tx, p models.LobbyPlayer) error {
	_, err := tx.Exec(ctx, upsertPlayerQ, p.LobbyID, p.UserID, p.IsReady, p.IsLeader, p.Enabled)
	return err
}

func execGame(ctx context.Context, tx pgx.Tx, g models.Game) error {
	_, err := tx.Exec(ctx, upsertGameQ,
		g.ID, g.TournamentID, g.Round, g.MatchIndex, g.PlayerOneID, g.PlayerTwoID,
		g.Status, g.WinnerID, g.LoserID, g.Score, g.PlayTimeSec)
	return err
}

func (s *Store) GetLobbyState(ctx context.Context, lobbyID uuid.UUID) (*lobby.Snapshot, error) {
	var snap lobby.Snapshot

	q := `
	SELECT l.id, l.tournament_id, l.max_players, l.status, l.creator_id, l.created_at, l.updated_at,
	       t.id, t.type, t.status, t.round, t.winner_id
	FROM lobbies l
	JOIN tournaments t ON t.id = l.tournament_id
	WHERE l.id = $1
	`
	err := s.pool.QueryRow(ctx, q, lobbyID).Scan(
		&snap.Lobby.ID, &snap.Lobby.TournamentID, &snap.Lobby.MaxPlayers,
		&snap.Lobby.Status, &snap.Lobby.CreatorID, &snap.Lobby.CreatedAt, &snap.Lobby.UpdatedAt,
		&snap.Tournament.ID, &snap.Tournament.Type, &snap.Tournament.Status,
		&snap.Tournament.Round, &snap.Tournament.WinnerID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lobby.ErrLobbyNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
	SELECT lobby_id, user_id, is_ready, is_leader, enabled
	FROM lobby_players
	WHERE lobby_id = $1
	ORDER BY user_id
	`, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p models.LobbyPlayer
		if err := rows.Scan(&p.LobbyID, &p.UserID, &p.IsReady, &p.IsLeader, &p.Enabled); err != nil {
			return nil, err
		}
		snap.Players = append(snap.Players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	games, err := s.ListGames(ctx, snap.Lobby.TournamentID)
	if err != nil {
		return nil, err
	}
	snap.Games = games
	return &snap, nil
}

func (s *Store) ListGames(ctx context.Context, tournamentID uuid.UUID) ([]models.Game, error) {
	q := `
	SELECT id, tournament_id, round, match_index, player_one_id, player_two_id,
	       status, winner_id, loser_id, score, play_time_sec
	FROM games
	WHERE tournament_id = $1
	ORDER BY round, match_index
	`
	rows, err := s.pool.Query(ctx, q, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		var g models.Game
		err := rows.Scan(
			&g.ID, &g.TournamentID, &g.Round, &g.MatchIndex, &g.PlayerOneID, &g.PlayerTwoID,
			&g.Status, &g.WinnerID, &g.LoserID, &g.Score, &g.PlayTimeSec)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *Store) LobbyIDForGame(ctx context.Context, gameID uuid.UUID) (uuid.UUID, error) {
	q := `
	SELECT l.id
	FROM games g
	JOIN lobbies l ON l.tournament_id = g.tournament_id
	WHERE g.id = $1
	`
	var lobbyID uuid.UUID
	err := s.pool.QueryRow(ctx, q, gameID).Scan(&lobbyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, lobby.ErrGameNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return lobbyID, nil
}

func (s *Store) ListActiveLobbies(ctx context.Context) ([]models.Lobby, error) {
	q := `
	SELECT id, tournament_id, max_players, status, creator_id, created_at, updated_at
	FROM lobbies
	WHERE status != 'COMPLETED'
	ORDER BY created_at DESC
	`
	return s.queryLobbies(ctx, q)
}

func (s *Store) ListZombieLobbies(ctx context.Context) ([]models.Lobby, error) {
	q := `
	SELECT l.id, l.tournament_id, l.max_players, l.status, l.creator_id, l.created_at, l.updated_at
	FROM lobbies l
	WHERE l.status = 'STARTED'
	  AND NOT EXISTS (
		SELECT 1 FROM lobby_players p
		WHERE p.lobby_id = l.id AND p.enabled
	  )
	`
	return s.queryLobbies(ctx, q)
}

func (s *Store) queryLobbies(ctx context.Context, q string) ([]models.Lobby, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lobbies []models.Lobby
	for rows.Next() {
		var l models.Lobby
		err := rows.Scan(&l.ID, &l.TournamentID, &l.MaxPlayers, &l.Status,
			&l.CreatorID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, err
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, rows.Err()
}

func (s *Store) UserInActiveLobby(ctx context.Context, userID uuid.UUID) (bool, error) {
	q := `
	SELECT 1
	FROM lobby_players p
	JOIN lobbies l ON l.id = p.lobby_id
	WHERE p.user_id = $1 AND p.enabled AND l.status != 'COMPLETED'
	LIMIT 1
	`
	var tmp int
	err := s.pool.QueryRow(ctx, q, userID).Scan(&tmp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
