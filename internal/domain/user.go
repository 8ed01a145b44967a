package domain

import (
	"time"

	"github.com/google/uuid"
)

const ProviderLocal = "local"

// User is an account record held by the storage collaborator.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Provider     string    `json:"provider"`
	ProviderID   string    `json:"provider_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is everything the room core ever learns about an authenticated human.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewLocalUser(email, name, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Provider:     ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewProviderUser(provider, providerID, email, name string) *User {
	now := time.Now().UTC()
	return &User{
		ID:         uuid.New(),
		Email:      email,
		Name:       name,
		Provider:   provider,
		ProviderID: providerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID.String(), Email: u.Email, Name: u.Name}
}
