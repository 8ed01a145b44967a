package relay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/pion/webrtc/v3"
)

type EventType string

const (
	EventRoomCreated      EventType = "room-created"
	EventUserJoined       EventType = "user-joined"
	EventOffer            EventType = "offer"
	EventAnswer           EventType = "answer"
	EventICECandidate     EventType = "ice-candidate"
	EventUserLeft         EventType = "user-left"
	EventChatMessage      EventType = "chat-message"
	EventScreenShareStart EventType = "screen-share-start"
	EventScreenShareStop  EventType = "screen-share-stop"
)

const channelPrefix = "room-"

// ParseEventType maps a wire name onto the closed set of relay events.
func ParseEventType(name string) (EventType, error) {
	switch t := EventType(name); t {
	case EventRoomCreated, EventUserJoined, EventOffer, EventAnswer, EventICECandidate,
		EventUserLeft, EventChatMessage, EventScreenShareStart, EventScreenShareStop:
		return t, nil
	default:
		return "", domain.NewValidationError("event", fmt.Sprintf("unknown event %q", name))
	}
}

// IsAddressed reports whether the event carries from/to routing that the
// receiver must enforce.
func (t EventType) IsAddressed() bool {
	switch t {
	case EventOffer, EventAnswer, EventICECandidate:
		return true
	default:
		return false
	}
}

// ClientTriggerable reports whether a client may publish the event directly.
// Membership deltas only ever originate from the room lifecycle.
func (t EventType) ClientTriggerable() bool {
	switch t {
	case EventOffer, EventAnswer, EventICECandidate, EventChatMessage,
		EventScreenShareStart, EventScreenShareStop:
		return true
	default:
		return false
	}
}

// Event is one named relay message. Data holds the JSON payload.
type Event struct {
	Type EventType       `json:"event"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(t EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Event{Type: t, Data: data}, nil
}

func MustEvent(t EventType, payload any) Event {
	ev, err := NewEvent(t, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return domain.NewValidationError("data", "is empty")
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

func Channel(roomID string) string {
	return channelPrefix + roomID
}

func RoomFromChannel(channel string) (string, bool) {
	roomID, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok || roomID == "" {
		return "", false
	}
	return roomID, true
}

type RoomCreated struct {
	RoomID    string   `json:"roomId"`
	Host      string   `json:"host"`
	UserCount int      `json:"userCount"`
	AllUsers  []string `json:"allUsers"`
}

type UserJoined struct {
	UserID        string   `json:"userId"`
	ExistingUsers []string `json:"existingUsers"`
	UserCount     int      `json:"userCount"`
	AllUsers      []string `json:"allUsers"`
}

type UserLeft struct {
	UserID    string   `json:"userId"`
	UserCount int      `json:"userCount"`
	AllUsers  []string `json:"allUsers"`
}

// Signal is the envelope of offer, answer and ice-candidate events.
type Signal struct {
	RoomID    string                     `json:"roomId,omitempty"`
	From      string                     `json:"from"`
	To        string                     `json:"to,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

type ChatMessage struct {
	RoomID    string    `json:"roomId,omitempty"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ScreenShare struct {
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId"`
}
