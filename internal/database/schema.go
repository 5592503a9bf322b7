// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		username TEXT NOT NULL,
		is_ephemeral BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS tournaments (
		id UUID PRIMARY KEY,
		type INT NOT NULL,
		status TEXT NOT NULL,
		round INT NOT NULL DEFAULT 0,
		winner_id UUID
	)`,
	`CREATE TABLE IF NOT EXISTS lobbies (
		id UUID PRIMARY KEY,
		tournament_id UUID NOT NULL REFERENCES tournaments(id),
		max_players INT NOT NULL,
		status TEXT NOT NULL,
		creator_id UUID NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lobby_players (
		lobby_id UUID NOT NULL REFERENCES lobbies(id),
		user_id UUID NOT NULL,
		is_ready BOOLEAN NOT NULL DEFAULT FALSE,
		is_leader BOOLEAN NOT NULL DEFAULT FALSE,
		enabled BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (lobby_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id UUID PRIMARY KEY,
		tournament_id UUID NOT NULL REFERENCES tournaments(id),
		round INT NOT NULL,
		match_index INT NOT NULL,
		player_one_id UUID NOT NULL,
		player_two_id UUID NOT NULL,
		status TEXT NOT NULL,
		winner_id UUID,
		loser_id UUID,
		score TEXT NOT NULL DEFAULT '',
		play_time_sec INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_games_tournament ON games (tournament_id, round, match_index)`,
	`CREATE INDEX IF NOT EXISTS idx_lobby_players_user ON lobby_players (user_id) WHERE enabled`,
}

// Migrate applies the schema idempotently. Meant for startup; production
// deployments can run the same DDL out of band instead.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
