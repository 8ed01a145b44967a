package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityFixture() domain.Identity {
	return domain.Identity{ID: "8b7f2a4e-0000-4000-8000-000000000001", Email: "alice@example.com", Name: "Alice"}
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(SocketMessage{Event: event, Data: raw}))
}

// expect reads until a message with the wanted event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) SocketMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg SocketMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestSocketBindingMembershipAndRelay(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	alice := dialWS(t, srv, "/ws")
	send(t, alice, SocketCreateRoom, SocketJoinRequest{UserID: "alice"})
	var created SocketRoomState
	require.NoError(t, json.Unmarshal(expect(t, alice, SocketRoomJoined).Data, &created))
	require.NotEmpty(t, created.RoomID)
	assert.Equal(t, []string{"alice"}, created.AllUsers)

	bob := dialWS(t, srv, "/ws")
	send(t, bob, SocketJoinRoom, SocketJoinRequest{RoomID: created.RoomID, UserID: "bob"})

	var joined relay.UserJoined
	require.NoError(t, json.Unmarshal(expect(t, alice, string(relay.EventUserJoined)).Data, &joined))
	assert.Equal(t, "bob", joined.UserID)
	assert.Equal(t, []string{"alice"}, joined.ExistingUsers)

	// The joiner sees its own broadcast too.
	require.NoError(t, json.Unmarshal(expect(t, bob, string(relay.EventUserJoined)).Data, &joined))
	assert.Equal(t, "bob", joined.UserID)

	send(t, bob, string(relay.EventChatMessage), relay.ChatMessage{UserID: "spoofed", Message: "hello"})
	var chat relay.ChatMessage
	require.NoError(t, json.Unmarshal(expect(t, alice, string(relay.EventChatMessage)).Data, &chat))
	assert.Equal(t, "bob", chat.UserID)
	assert.Equal(t, "hello", chat.Message)
	assert.False(t, chat.Timestamp.IsZero())

	// Dropping the connection leaves the room.
	require.NoError(t, bob.Close())
	var left relay.UserLeft
	require.NoError(t, json.Unmarshal(expect(t, alice, string(relay.EventUserLeft)).Data, &left))
	assert.Equal(t, "bob", left.UserID)
	assert.Equal(t, 1, left.UserCount)
}

func TestSocketBindingErrors(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws")

	send(t, conn, string(relay.EventOffer), relay.Signal{To: "x"})
	var failure map[string]string
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketError).Data, &failure))
	assert.Contains(t, failure["message"], "join a room first")

	send(t, conn, SocketJoinRoom, SocketJoinRequest{RoomID: "missing", UserID: "bob"})
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketError).Data, &failure))
	assert.Contains(t, failure["message"], "not found")

	send(t, conn, "teleport", struct{}{})
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketError).Data, &failure))
	assert.Contains(t, failure["message"], "unknown event")
}

func TestSocketRoomInfo(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/ws")

	send(t, conn, SocketGetRoomInfo, struct{}{})
	var failure map[string]string
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketError).Data, &failure))
	assert.Equal(t, "roomId is required", failure["message"])

	send(t, conn, SocketGetRoomInfo, SocketRoomInfoRequest{RoomID: "missing"})
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketError).Data, &failure))
	assert.Contains(t, failure["message"], "not found")

	secret := "secret"
	send(t, conn, SocketCreateRoom, SocketJoinRequest{UserID: "alice", Password: &secret})
	var created SocketRoomState
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketRoomJoined).Data, &created))

	send(t, conn, SocketGetRoomInfo, struct{}{})
	var info SocketRoomInfoState
	require.NoError(t, json.Unmarshal(expect(t, conn, SocketRoomInfo).Data, &info))
	assert.Equal(t, SocketRoomInfoState{
		RoomID:      created.RoomID,
		HasPassword: true,
		UserCount:   1,
		Users:       []string{"alice"},
	}, info)

	other := dialWS(t, srv, "/ws")
	send(t, other, SocketGetRoomInfo, SocketRoomInfoRequest{RoomID: created.RoomID})
	require.NoError(t, json.Unmarshal(expect(t, other, SocketRoomInfo).Data, &info))
	assert.Equal(t, created.RoomID, info.RoomID)
	assert.Equal(t, 1, info.UserCount)
}

func TestSubscribeStreamsChannel(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialWS(t, srv, "/signaling/subscribe?channel=room-r1")
	require.Eventually(t, func() bool { return ts.hub.SubscriberCount("room-r1") == 1 }, 2*time.Second, 10*time.Millisecond)

	code, _ := ts.do(t, http.MethodPost, "/signaling/trigger", map[string]any{
		"channel": "room-r1",
		"event":   "screen-share-start",
		"data":    map[string]string{"userId": "alice"},
	})
	require.Equal(t, http.StatusOK, code)

	msg := expect(t, conn, string(relay.EventScreenShareStart))
	assert.JSONEq(t, `{"userId":"alice"}`, string(msg.Data))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ts.hub.SubscriberCount("room-r1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeRejectsForeignChannel(t *testing.T) {
	ts := newTestServer(t)
	code, body := ts.do(t, http.MethodGet, "/signaling/subscribe?channel=lobby", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
}
