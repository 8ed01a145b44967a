package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetroom/internal/domain"
)

var (
	ErrRoomNotFound    = fmt.Errorf("room %w", domain.ErrNotFound)
	ErrRoomExists      = fmt.Errorf("room %w", domain.ErrAlreadyExists)
	ErrUserNotFound    = fmt.Errorf("user %w", domain.ErrNotFound)
	ErrUserEmailExists = fmt.Errorf("user email %w", domain.ErrAlreadyExists)
)

// RoomMutation edits a room in place. Returning deleteRoom=true removes the
// room; a non-nil error aborts the mutation and leaves the stored room untouched.
type RoomMutation func(room *domain.Room) (deleteRoom bool, err error)

// RoomRepository stores rooms. Update is atomic per room: concurrent mutations
// of the same room are serialized, mutations of different rooms are not.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	Get(ctx context.Context, id string) (*domain.Room, error)
	// Update returns the room after the mutation, or nil if it was deleted.
	Update(ctx context.Context, id string, fn RoomMutation) (*domain.Room, error)
	Count(ctx context.Context) (int, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}
