package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/metrics"
	"github.com/immxrtalbeast/meetroom/internal/repository"
)

// ErrWrongPassword is returned by JoinRoom when the room password does not match.
var ErrWrongPassword = fmt.Errorf("room password: %w", domain.ErrUnauthorized)

// Registry is the single source of truth for room membership. Every mutation
// goes through the repository's per-room Update, so two joins on one room are
// serialized while joins on different rooms are not.
type Registry struct {
	rooms repository.RoomRepository
	log   *slog.Logger
}

type LeaveOutcome struct {
	// Room is nil when Deleted is true or the room did not exist.
	Room    *domain.Room
	Removed bool
	Deleted bool
}

func NewRegistry(rooms repository.RoomRepository, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{rooms: rooms, log: log}
}

func (r *Registry) CreateRoom(ctx context.Context, roomID, creator string, password *string) (*domain.Room, error) {
	const op = "service.registry.create"

	room := domain.NewRoom(roomID, creator, password)
	if err := r.rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RoomsActive.Inc()
	metrics.RoomMembershipChanges.WithLabelValues("create").Inc()
	return room.Clone(), nil
}

func (r *Registry) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	const op = "service.registry.get"

	room, err := r.rooms.Get(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return room, nil
}

// JoinRoom adds the participant after checking password inside the same
// atomic mutation. Joining twice is a no-op.
func (r *Registry) JoinRoom(ctx context.Context, roomID, participantID string, password *string) (*domain.Room, error) {
	const op = "service.registry.join"

	added := false
	room, err := r.rooms.Update(ctx, roomID, func(room *domain.Room) (bool, error) {
		if !domain.CheckPassword(room, password) {
			return false, ErrWrongPassword
		}
		added = room.AddMember(participantID)
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if added {
		metrics.RoomMembershipChanges.WithLabelValues("join").Inc()
	}
	return room, nil
}

// LeaveRoom removes the participant and deletes the room once it is empty.
// Leaving a missing room or as a non-member is not an error.
func (r *Registry) LeaveRoom(ctx context.Context, roomID, participantID string) (LeaveOutcome, error) {
	const op = "service.registry.leave"

	var out LeaveOutcome
	room, err := r.rooms.Update(ctx, roomID, func(room *domain.Room) (bool, error) {
		out.Removed = room.RemoveMember(participantID)
		return room.MemberCount() == 0, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return LeaveOutcome{}, nil
		}
		return LeaveOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	out.Room = room
	out.Deleted = room == nil
	if out.Removed {
		metrics.RoomMembershipChanges.WithLabelValues("leave").Inc()
	}
	if out.Deleted {
		metrics.RoomsActive.Dec()
		r.log.Debug("room deleted", slog.String("op", op), slog.String("room_id", roomID))
	}
	return out, nil
}

func (r *Registry) CheckPassword(room *domain.Room, supplied *string) bool {
	return domain.CheckPassword(room, supplied)
}

// SyncMetrics resets the active rooms gauge from storage, used at startup
// when rooms survive a restart in a shared store.
func (r *Registry) SyncMetrics(ctx context.Context) error {
	const op = "service.registry.sync_metrics"

	n, err := r.rooms.Count(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.RoomsActive.Set(float64(n))
	return nil
}
