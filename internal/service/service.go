package service

import (
	"context"
	"encoding/json"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/relay"
)

type RoomInteractor interface {
	Create(ctx context.Context, participantID string, password *string) (*domain.Room, error)
	Join(ctx context.Context, roomID, participantID string, password *string) (*JoinResult, error)
	Leave(ctx context.Context, roomID, participantID string) (*LeaveResult, error)
	Info(ctx context.Context, roomID string) (*domain.Room, error)
	Trigger(ctx context.Context, channel, event string, data json.RawMessage) error
	Relay(ctx context.Context, roomID, sender string, event relay.EventType, data json.RawMessage) error
}

type UserInteractor interface {
	Register(ctx context.Context, email, password, name string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Verify(ctx context.Context, token string) (*domain.User, error)
}

// TokenIssuer mints and checks bearer credentials for an identity.
type TokenIssuer interface {
	Issue(identity domain.Identity) (string, error)
	Parse(token string) (domain.Identity, error)
}

type JoinResult struct {
	Room          *domain.Room
	ExistingUsers []string
}

type LeaveResult struct {
	UserCount int
	AllUsers  []string
	// Left is false when the participant was not a member or the room was gone.
	Left    bool
	Deleted bool
}

type AuthResult struct {
	Token string
	User  *domain.User
}
