package domain

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	roomIDLength   = 9
	roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Room is an ephemeral meeting. It exists exactly as long as it has members.
type Room struct {
	ID        string
	Members   []string
	Password  *string
	Host      string
	CreatedAt time.Time
}

// NewRoom constructs a room whose only member is the creator.
func NewRoom(id, creator string, password *string) *Room {
	return &Room{
		ID:        id,
		Members:   []string{creator},
		Password:  normalizePassword(password),
		Host:      creator,
		CreatedAt: time.Now().UTC(),
	}
}

func (r *Room) HasPassword() bool {
	return r != nil && r.Password != nil
}

func (r *Room) MemberCount() int {
	if r == nil {
		return 0
	}
	return len(r.Members)
}

func (r *Room) HasMember(participantID string) bool {
	if r == nil {
		return false
	}
	for _, m := range r.Members {
		if m == participantID {
			return true
		}
	}
	return false
}

// AddMember appends the participant and reports whether the set changed.
func (r *Room) AddMember(participantID string) bool {
	if r.HasMember(participantID) {
		return false
	}
	r.Members = append(r.Members, participantID)
	return true
}

// RemoveMember drops the participant and reports whether the set changed.
func (r *Room) RemoveMember(participantID string) bool {
	for i, m := range r.Members {
		if m == participantID {
			r.Members = append(r.Members[:i:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// MemberList returns members in join order.
func (r *Room) MemberList() []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, len(r.Members))
	copy(out, r.Members)
	return out
}

// Others returns every member except participantID.
func (r *Room) Others(participantID string) []string {
	out := make([]string, 0, r.MemberCount())
	for _, m := range r.Members {
		if m != participantID {
			out = append(out, m)
		}
	}
	return out
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Members = r.MemberList()
	if r.Password != nil {
		p := *r.Password
		clone.Password = &p
	}
	return &clone
}

// CheckPassword reports whether supplied opens the room. Open rooms accept
// anything; protected rooms need an exact match. Passwords are stored in
// plain text: rooms are ephemeral and this is not a security boundary.
func CheckPassword(room *Room, supplied *string) bool {
	if room == nil {
		return false
	}
	if room.Password == nil {
		return true
	}
	return supplied != nil && *supplied == *room.Password
}

// NewRoomID returns a random lowercase base36 token.
func NewRoomID() string {
	b := make([]byte, roomIDLength)
	max := big.NewInt(int64(len(roomIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		b[i] = roomIDAlphabet[n.Int64()]
	}
	return string(b)
}

// An empty password means an open room.
func normalizePassword(password *string) *string {
	if password == nil || *password == "" {
		return nil
	}
	p := *password
	return &p
}
