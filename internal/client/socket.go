package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/immxrtalbeast/meetroom/internal/relay"
)

const (
	socketCreateRoom  = "create-room"
	socketJoinRoom    = "join-room"
	socketLeaveRoom   = "leave-room"
	socketGetRoomInfo = "get-room-info"
	socketRoomJoined  = "room-joined"
	socketRoomLeft    = "room-left"
	socketRoomInfo    = "room-info"
	socketError       = "error"

	eventBuffer = 256
)

type socketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type socketJoin struct {
	RoomID   string  `json:"roomId,omitempty"`
	UserID   string  `json:"userId"`
	Password *string `json:"password,omitempty"`
}

// SocketClient is the stateful binding: one websocket carries session
// control and every relay event. The server drops our membership when the
// socket goes away.
type SocketClient struct {
	ws      *wsConn
	events  chan relay.Event
	replies chan socketMessage

	// One control request in flight at a time.
	reqMu sync.Mutex
	log   *slog.Logger
}

func DialSocket(ctx context.Context, serverURL string, token string, log *slog.Logger) (*SocketClient, error) {
	const op = "client.socket.dial"

	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid server URL: %w", op, err)
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	log = log.With(slog.String("binding", "socket"))
	ws, err := dialWS(ctx, websocketURL(base, "/ws", nil), header, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &SocketClient{
		ws:      ws,
		events:  make(chan relay.Event, eventBuffer),
		replies: make(chan socketMessage, 8),
		log:     log,
	}
	go c.readPump()
	return c, nil
}

func (c *SocketClient) readPump() {
	defer close(c.events)

	c.ws.readLoop(func(raw []byte) {
		var msg socketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug("undecodable socket message dropped", slog.String("error", err.Error()))
			return
		}

		switch msg.Event {
		case socketRoomJoined, socketRoomLeft, socketRoomInfo, socketError:
			select {
			case c.replies <- msg:
			default:
				c.log.Debug("unsolicited reply dropped", slog.String("event", msg.Event))
			}
			return
		}

		eventType, err := relay.ParseEventType(msg.Event)
		if err != nil {
			c.log.Debug("unknown event dropped", slog.String("event", msg.Event))
			return
		}
		select {
		case c.events <- relay.Event{Type: eventType, Data: msg.Data}:
		case <-c.ws.done:
		}
	})
}

// Events delivers relay events for the joined room. It is closed once the
// connection ends.
func (c *SocketClient) Events() <-chan relay.Event {
	return c.events
}

func (c *SocketClient) CreateRoom(ctx context.Context, userID string, password *string) (*RoomState, error) {
	const op = "client.socket.create_room"

	var state RoomState
	if err := c.request(ctx, socketCreateRoom, socketJoin{UserID: userID, Password: password}, socketRoomJoined, &state); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &state, nil
}

func (c *SocketClient) JoinRoom(ctx context.Context, roomID, userID string, password *string) (*RoomState, error) {
	const op = "client.socket.join_room"

	var state RoomState
	req := socketJoin{RoomID: roomID, UserID: userID, Password: password}
	if err := c.request(ctx, socketJoinRoom, req, socketRoomJoined, &state); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &state, nil
}

// RoomInfo describes roomID, or the room this socket joined when roomID is
// empty.
func (c *SocketClient) RoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	const op = "client.socket.room_info"

	var info RoomInfo
	req := struct {
		RoomID string `json:"roomId,omitempty"`
	}{RoomID: roomID}
	if err := c.request(ctx, socketGetRoomInfo, req, socketRoomInfo, &info); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &info, nil
}

// Send relays one client event to the room this socket joined.
func (c *SocketClient) Send(ctx context.Context, ev relay.Event) error {
	return c.ws.write(ctx, socketMessage{Event: string(ev.Type), Data: ev.Data})
}

// Leave asks the server to drop our membership and waits for the ack.
func (c *SocketClient) Leave(ctx context.Context) error {
	const op = "client.socket.leave"

	if err := c.request(ctx, socketLeaveRoom, struct{}{}, socketRoomLeft, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *SocketClient) Close() error {
	c.ws.close()
	return nil
}

func (c *SocketClient) request(ctx context.Context, event string, payload any, want string, out any) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c.drainReplies()
	if err := c.ws.write(ctx, socketMessage{Event: event, Data: data}); err != nil {
		return err
	}

	for {
		select {
		case msg := <-c.replies:
			switch msg.Event {
			case socketError:
				var failure struct {
					Message string `json:"message"`
				}
				_ = json.Unmarshal(msg.Data, &failure)
				return &SocketError{Message: failure.Message}
			case want:
				if out == nil || len(msg.Data) == 0 {
					return nil
				}
				return json.Unmarshal(msg.Data, out)
			default:
				c.log.Debug("stale reply skipped", slog.String("event", msg.Event))
			}
		case <-c.ws.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainReplies discards errors left over from earlier relay sends so they
// are not taken as the answer to the next request.
func (c *SocketClient) drainReplies() {
	for {
		select {
		case msg := <-c.replies:
			c.log.Debug("earlier reply discarded", slog.String("event", msg.Event))
		default:
			return
		}
	}
}
