package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/internal/relay/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type eventTypeMatcher struct {
	want relay.EventType
}

func (m eventTypeMatcher) Matches(x any) bool {
	ev, ok := x.(relay.Event)
	return ok && ev.Type == m.want
}

func (m eventTypeMatcher) String() string {
	return fmt.Sprintf("is a %s event", m.want)
}

func eventOfType(t relay.EventType) gomock.Matcher {
	return eventTypeMatcher{want: t}
}

type published struct {
	channel string
	event   relay.Event
}

// recorder captures every publish so scenarios can assert on the stream.
type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) record(_ context.Context, channel string, ev relay.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{channel: channel, event: ev})
	return nil
}

func (r *recorder) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newRoomServiceWithMock(t *testing.T) (*RoomService, *mocks.MockPublisher) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	svc := NewRoomService(newTestRegistry(), pub, discardLogger())
	return svc, pub
}

func fixedIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestCreateThenInfo(t *testing.T) {
	svc, pub := newRoomServiceWithMock(t)
	rec := &recorder{}
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), eventOfType(relay.EventRoomCreated)).DoAndReturn(rec.record)

	room, err := svc.Create(context.Background(), "alice", nil)
	require.NoError(t, err)
	assert.Len(t, room.ID, 9)

	info, err := svc.Info(context.Background(), room.ID)
	require.NoError(t, err)
	assert.False(t, info.HasPassword())
	assert.Equal(t, 1, info.MemberCount())
	assert.Equal(t, []string{"alice"}, info.MemberList())

	got := rec.last()
	assert.Equal(t, relay.Channel(room.ID), got.channel)
	var payload relay.RoomCreated
	require.NoError(t, got.event.Decode(&payload))
	assert.Equal(t, relay.RoomCreated{RoomID: room.ID, Host: "alice", UserCount: 1, AllUsers: []string{"alice"}}, payload)
}

func TestCreateRetriesOnIDCollision(t *testing.T) {
	svc, pub := newRoomServiceWithMock(t)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	svc.newID = fixedIDs("taken", "taken", "fresh")
	_, err := svc.Create(context.Background(), "alice", nil)
	require.NoError(t, err)

	room, err := svc.Create(context.Background(), "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh", room.ID)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, pub := newRoomServiceWithMock(t)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)

	svc.newID = fixedIDs("taken")
	_, err := svc.Create(context.Background(), "alice", nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "bob", nil)
	require.ErrorIs(t, err, ErrRoomIDExhausted)
}

func TestCreateValidatesParticipant(t *testing.T) {
	svc, _ := newRoomServiceWithMock(t)
	_, err := svc.Create(context.Background(), "", nil)
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.Create(context.Background(), "has space", nil)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestJoinLeaveScenario(t *testing.T) {
	ctx := context.Background()
	svc, pub := newRoomServiceWithMock(t)
	rec := &recorder{}
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(rec.record).AnyTimes()
	svc.newID = fixedIDs("r1")

	room, err := svc.Create(ctx, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, "r1", room.ID)

	joined, err := svc.Join(ctx, "r1", "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, joined.ExistingUsers)
	assert.Equal(t, 2, joined.Room.MemberCount())

	var uj relay.UserJoined
	require.NoError(t, rec.last().event.Decode(&uj))
	assert.Equal(t, relay.UserJoined{
		UserID:        "bob",
		ExistingUsers: []string{"alice"},
		UserCount:     2,
		AllUsers:      []string{"alice", "bob"},
	}, uj)

	left, err := svc.Leave(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, left.UserCount)
	assert.True(t, left.Left)
	assert.False(t, left.Deleted)

	info, err := svc.Info(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, info.MemberList())

	left, err = svc.Leave(ctx, "r1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, left.UserCount)
	assert.True(t, left.Deleted)
	assert.Equal(t, []string{}, left.AllUsers)

	var ul relay.UserLeft
	require.NoError(t, rec.last().event.Decode(&ul))
	assert.Equal(t, relay.UserLeft{UserID: "bob", UserCount: 0, AllUsers: []string{}}, ul)

	_, err = svc.Info(ctx, "r1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, pub := newRoomServiceWithMock(t)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	svc.newID = fixedIDs("r1")

	_, err := svc.Create(ctx, "alice", nil)
	require.NoError(t, err)

	first, err := svc.Join(ctx, "r1", "bob", nil)
	require.NoError(t, err)
	second, err := svc.Join(ctx, "r1", "bob", nil)
	require.NoError(t, err)

	assert.Equal(t, first.ExistingUsers, second.ExistingUsers)
	assert.Equal(t, 2, second.Room.MemberCount())
}

func TestJoinMissingRoomDoesNotBroadcast(t *testing.T) {
	svc, _ := newRoomServiceWithMock(t)

	_, err := svc.Join(context.Background(), "missing", "bob", nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJoinPasswordScenario(t *testing.T) {
	ctx := context.Background()
	svc, pub := newRoomServiceWithMock(t)
	svc.newID = fixedIDs("r1")

	pub.EXPECT().Publish(gomock.Any(), "room-r1", eventOfType(relay.EventRoomCreated)).Return(nil)
	_, err := svc.Create(ctx, "alice", strPtr("secret"))
	require.NoError(t, err)

	_, err = svc.Join(ctx, "r1", "bob", strPtr("wrong"))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	pub.EXPECT().Publish(gomock.Any(), "room-r1", eventOfType(relay.EventUserJoined)).Return(nil)
	res, err := svc.Join(ctx, "r1", "bob", strPtr("secret"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.ExistingUsers)
}

func TestRelayFailureKeepsMembership(t *testing.T) {
	ctx := context.Background()
	svc, pub := newRoomServiceWithMock(t)
	svc.newID = fixedIDs("r1")

	boom := fmt.Errorf("%w: pusher down", domain.ErrTransport)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom).AnyTimes()

	_, err := svc.Create(ctx, "alice", nil)
	require.NoError(t, err)
	res, err := svc.Join(ctx, "r1", "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Room.MemberCount())

	left, err := svc.Leave(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, left.UserCount)
}

func TestLeaveToleratesMissingRoom(t *testing.T) {
	svc, _ := newRoomServiceWithMock(t)

	res, err := svc.Leave(context.Background(), "gone", "bob")
	require.NoError(t, err)
	assert.False(t, res.Left)
	assert.Equal(t, 0, res.UserCount)

	_, err = svc.Leave(context.Background(), "", "bob")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestTriggerValidation(t *testing.T) {
	svc, _ := newRoomServiceWithMock(t)
	ctx := context.Background()
	data := json.RawMessage(`{"userId":"alice"}`)

	tests := []struct {
		name    string
		channel string
		event   string
		data    json.RawMessage
	}{
		{"missing channel", "", "screen-share-start", data},
		{"missing event", "room-r1", "", data},
		{"missing data", "room-r1", "screen-share-start", nil},
		{"null data", "room-r1", "screen-share-start", json.RawMessage("null")},
		{"foreign channel", "lobby", "screen-share-start", data},
		{"unknown event", "room-r1", "room-deleted", data},
		{"membership event", "room-r1", "user-joined", data},
		{"offer without sdp", "room-r1", "offer", json.RawMessage(`{"from":"alice","to":"bob"}`)},
		{"signal without sender", "room-r1", "ice-candidate", json.RawMessage(`{"candidate":{"candidate":"c"}}`)},
		{"empty chat", "room-r1", "chat-message", json.RawMessage(`{"userId":"alice","message":"  "}`)},
		{"malformed data", "room-r1", "answer", json.RawMessage(`[1,2]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Trigger(ctx, tt.channel, tt.event, tt.data)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestTriggerPublishesNormalizedChat(t *testing.T) {
	svc, pub := newRoomServiceWithMock(t)
	rec := &recorder{}
	pub.EXPECT().Publish(gomock.Any(), "room-r1", eventOfType(relay.EventChatMessage)).DoAndReturn(rec.record)

	err := svc.Trigger(context.Background(), "room-r1", "chat-message",
		json.RawMessage(`{"userId":"alice","message":"  hello  ","timestamp":"1999-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	var chat relay.ChatMessage
	require.NoError(t, rec.last().event.Decode(&chat))
	assert.Equal(t, "alice", chat.UserID)
	assert.Equal(t, "hello", chat.Message)
	assert.True(t, chat.Timestamp.Year() > 2000)
}

func TestRelayStampsSender(t *testing.T) {
	svc, pub := newRoomServiceWithMock(t)
	rec := &recorder{}
	pub.EXPECT().Publish(gomock.Any(), "room-r1", eventOfType(relay.EventOffer)).DoAndReturn(rec.record)

	err := svc.Relay(context.Background(), "r1", "bob", relay.EventOffer,
		json.RawMessage(`{"from":"mallory","to":"alice","offer":{"type":"offer","sdp":"v=0"}}`))
	require.NoError(t, err)

	var sig relay.Signal
	require.NoError(t, rec.last().event.Decode(&sig))
	assert.Equal(t, "bob", sig.From)
	assert.Equal(t, "alice", sig.To)
}

func TestTriggerSurfacesTransportError(t *testing.T) {
	svc, pub := newRoomServiceWithMock(t)
	boom := fmt.Errorf("%w: 503", domain.ErrTransport)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(boom)

	err := svc.Trigger(context.Background(), "room-r1", "screen-share-stop", json.RawMessage(`{"userId":"alice"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}
