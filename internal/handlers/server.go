// internal/handlers/server.go

// Package handlers exposes the HTTP command surface and the websocket
// session flow. Handlers translate requests into registry commands; all
// lobby rules live behind the registry, never here.
package handlers

import (
	"context"

	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/blue-orion/pongservice/internal/models"
	"github.com/blue-orion/pongservice/internal/registry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserStore is the slice of user persistence the handlers need.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (string, error)
}

// Server bundles the dependencies every handler shares.
type Server struct {
	Log      *logrus.Logger
	Registry *registry.Registry
	Store    lobby.Store
	Users    UserStore
}

// NewServer wires a handler server.
func NewServer(log *logrus.Logger, reg *registry.Registry, store lobby.Store, users UserStore) *Server {
	return &Server{Log: log, Registry: reg, Store: store, Users: users}
}
