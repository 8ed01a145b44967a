package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/internal/repository"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
)

const maxRoomIDAttempts = 5

var ErrRoomIDExhausted = errors.New("could not allocate a free room id")

// RoomService is the room lifecycle: registry mutations followed by relay
// broadcasts. A failed broadcast is logged and never undoes the mutation.
type RoomService struct {
	registry *Registry
	relay    relay.Publisher
	newID    func() string
	log      *slog.Logger
}

func NewRoomService(registry *Registry, publisher relay.Publisher, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		registry: registry,
		relay:    publisher,
		newID:    domain.NewRoomID,
		log:      log,
	}
}

func (s *RoomService) Create(ctx context.Context, participantID string, password *string) (*domain.Room, error) {
	const op = "service.room.create"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", participantID),
	)

	if err := domain.ValidateParticipantID(participantID); err != nil {
		return nil, err
	}

	var room *domain.Room
	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		created, err := s.registry.CreateRoom(ctx, s.newID(), participantID, password)
		if errors.Is(err, repository.ErrRoomExists) {
			log.Warn("room id collision, retrying", slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			log.Error("failed to create room", sl.Err(err))
			return nil, err
		}
		room = created
		break
	}
	if room == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrRoomIDExhausted)
	}

	log.Info("room created",
		slog.String("room_id", room.ID),
		slog.Bool("has_password", room.HasPassword()),
	)

	s.publish(ctx, log, room.ID, relay.MustEvent(relay.EventRoomCreated, relay.RoomCreated{
		RoomID:    room.ID,
		Host:      room.Host,
		UserCount: room.MemberCount(),
		AllUsers:  room.MemberList(),
	}))
	return room, nil
}

func (s *RoomService) Join(ctx context.Context, roomID, participantID string, password *string) (*JoinResult, error) {
	const op = "service.room.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID),
		slog.String("user_id", participantID),
	)

	if roomID == "" {
		return nil, domain.NewValidationError("roomId", "is required")
	}
	if err := domain.ValidateParticipantID(participantID); err != nil {
		return nil, err
	}

	room, err := s.registry.JoinRoom(ctx, roomID, participantID, password)
	if err != nil {
		log.Info("join rejected", sl.Err(err))
		return nil, err
	}

	existing := room.Others(participantID)
	log.Info("user joined", slog.Int("user_count", room.MemberCount()))

	s.publish(ctx, log, room.ID, relay.MustEvent(relay.EventUserJoined, relay.UserJoined{
		UserID:        participantID,
		ExistingUsers: existing,
		UserCount:     room.MemberCount(),
		AllUsers:      room.MemberList(),
	}))

	return &JoinResult{Room: room, ExistingUsers: existing}, nil
}

func (s *RoomService) Leave(ctx context.Context, roomID, participantID string) (*LeaveResult, error) {
	const op = "service.room.leave"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID),
		slog.String("user_id", participantID),
	)

	if roomID == "" {
		return nil, domain.NewValidationError("roomId", "is required")
	}
	if participantID == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}

	out, err := s.registry.LeaveRoom(ctx, roomID, participantID)
	if err != nil {
		log.Error("failed to leave room", sl.Err(err))
		return nil, err
	}

	res := &LeaveResult{
		UserCount: out.Room.MemberCount(),
		AllUsers:  out.Room.MemberList(),
		Left:      out.Removed,
		Deleted:   out.Deleted,
	}
	if res.AllUsers == nil {
		res.AllUsers = []string{}
	}

	if !out.Removed {
		log.Debug("leave was a no-op")
		return res, nil
	}

	log.Info("user left",
		slog.Int("user_count", res.UserCount),
		slog.Bool("room_deleted", res.Deleted),
	)

	s.publish(ctx, log, roomID, relay.MustEvent(relay.EventUserLeft, relay.UserLeft{
		UserID:    participantID,
		UserCount: res.UserCount,
		AllUsers:  res.AllUsers,
	}))
	return res, nil
}

func (s *RoomService) Info(ctx context.Context, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, domain.NewValidationError("roomId", "is required")
	}
	return s.registry.GetRoom(ctx, roomID)
}

// Trigger is the generic fan-out used by the stateless binding. The channel
// must name a room.
func (s *RoomService) Trigger(ctx context.Context, channel, event string, data json.RawMessage) error {
	if channel == "" {
		return domain.NewValidationError("channel", "is required")
	}
	if event == "" {
		return domain.NewValidationError("event", "is required")
	}
	if len(data) == 0 || string(data) == "null" {
		return domain.NewValidationError("data", "is required")
	}

	roomID, ok := relay.RoomFromChannel(channel)
	if !ok {
		return domain.NewValidationError("channel", "must be room-<roomId>")
	}
	eventType, err := relay.ParseEventType(event)
	if err != nil {
		return err
	}
	return s.Relay(ctx, roomID, "", eventType, data)
}

// Relay validates a client-originated event and broadcasts it to the room.
// A non-empty sender overrides the sender fields of the payload; the socket
// binding knows who is talking, the stateless binding does not.
func (s *RoomService) Relay(ctx context.Context, roomID, sender string, eventType relay.EventType, data json.RawMessage) error {
	const op = "service.room.relay"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID),
		slog.String("event", string(eventType)),
	)

	if !eventType.ClientTriggerable() {
		return domain.NewValidationError("event", fmt.Sprintf("%s cannot be triggered by clients", eventType))
	}

	ev, err := normalizeClientEvent(eventType, sender, data)
	if err != nil {
		log.Debug("rejected client event", sl.Err(err))
		return err
	}

	if err := s.relay.Publish(ctx, relay.Channel(roomID), ev); err != nil {
		log.Warn("relay publish failed", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func normalizeClientEvent(eventType relay.EventType, sender string, data json.RawMessage) (relay.Event, error) {
	raw := relay.Event{Type: eventType, Data: data}

	switch eventType {
	case relay.EventOffer, relay.EventAnswer, relay.EventICECandidate:
		var sig relay.Signal
		if err := raw.Decode(&sig); err != nil {
			return relay.Event{}, domain.NewValidationError("data", err.Error())
		}
		if sender != "" {
			sig.From = sender
		}
		if sig.From == "" {
			return relay.Event{}, domain.NewValidationError("from", "is required")
		}
		if err := checkSignalBody(eventType, &sig); err != nil {
			return relay.Event{}, err
		}
		return relay.NewEvent(eventType, sig)

	case relay.EventChatMessage:
		var chat relay.ChatMessage
		if err := raw.Decode(&chat); err != nil {
			return relay.Event{}, domain.NewValidationError("data", err.Error())
		}
		if sender != "" {
			chat.UserID = sender
		}
		msg, err := domain.NewChatMessage(chat.UserID, chat.Message)
		if err != nil {
			return relay.Event{}, err
		}
		return relay.NewEvent(eventType, relay.ChatMessage{
			RoomID:    chat.RoomID,
			UserID:    msg.UserID,
			Message:   msg.Message,
			Timestamp: msg.Timestamp,
		})

	case relay.EventScreenShareStart, relay.EventScreenShareStop:
		var share relay.ScreenShare
		if err := raw.Decode(&share); err != nil {
			return relay.Event{}, domain.NewValidationError("data", err.Error())
		}
		if sender != "" {
			share.UserID = sender
		}
		if share.UserID == "" {
			return relay.Event{}, domain.NewValidationError("userId", "is required")
		}
		return relay.NewEvent(eventType, share)

	default:
		return relay.Event{}, domain.NewValidationError("event", fmt.Sprintf("unsupported event %q", eventType))
	}
}

func checkSignalBody(eventType relay.EventType, sig *relay.Signal) error {
	switch eventType {
	case relay.EventOffer:
		if sig.Offer == nil {
			return domain.NewValidationError("offer", "is required")
		}
	case relay.EventAnswer:
		if sig.Answer == nil {
			return domain.NewValidationError("answer", "is required")
		}
	case relay.EventICECandidate:
		if sig.Candidate == nil {
			return domain.NewValidationError("candidate", "is required")
		}
	}
	return nil
}

func (s *RoomService) publish(ctx context.Context, log *slog.Logger, roomID string, ev relay.Event) {
	if err := s.relay.Publish(ctx, relay.Channel(roomID), ev); err != nil {
		log.Warn("broadcast failed, membership change kept",
			slog.String("event", string(ev.Type)),
			sl.Err(err),
		)
	}
}
