package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	// IsEphemeral marks guest accounts created for unauthenticated
	// websocket joins. They can later be claimed with real credentials.
	IsEphemeral bool `json:"is_ephemeral"`
}
