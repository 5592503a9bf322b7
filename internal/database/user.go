// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/blue-orion/pongservice/internal/auth"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrUserNotFound is returned for lookups of unknown users.
var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, email, password, username, is_ephemeral`

// CreateUser hashes the plaintext password and inserts the row. The caller's
// Password field is replaced with the encoded hash.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if !user.IsEphemeral {
		hash, err := auth.HashPassword(user.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		user.Password = hash
	}

	q := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5)`
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q,
			user.ID, user.Email, user.Password, user.Username, user.IsEphemeral)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return s.scanUser(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return s.scanUser(s.pool.QueryRow(ctx, q, email))
}

func (s *Store) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Username, &u.IsEphemeral)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser verifies credentials and returns a signed session token.
func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (string, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	ok, err := auth.VerifyPassword(password, user.Password)
	if err != nil {
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return "", errors.New("invalid credentials")
	}
	return auth.CreateJWT(user.ID.String())
}
