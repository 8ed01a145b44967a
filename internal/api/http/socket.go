package http

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetroom/internal/metrics"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/internal/service"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
)

// Session control messages of the socket binding. Everything else a client
// sends must be a client-triggerable relay event.
const (
	SocketCreateRoom  = "create-room"
	SocketJoinRoom    = "join-room"
	SocketLeaveRoom   = "leave-room"
	SocketGetRoomInfo = "get-room-info"

	SocketRoomJoined = "room-joined"
	SocketRoomLeft   = "room-left"
	SocketRoomInfo   = "room-info"
	SocketError      = "error"
)

type SocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SocketJoinRequest struct {
	RoomID   string  `json:"roomId"`
	UserID   string  `json:"userId"`
	Password *string `json:"password,omitempty"`
}

// SocketRoomState answers create-room and join-room.
type SocketRoomState struct {
	RoomID        string   `json:"roomId"`
	UserID        string   `json:"userId"`
	Host          string   `json:"host,omitempty"`
	ExistingUsers []string `json:"existingUsers"`
	UserCount     int      `json:"userCount"`
	AllUsers      []string `json:"allUsers"`
}

// SocketRoomInfoRequest names the room to describe. Empty means the room the
// connection is in.
type SocketRoomInfoRequest struct {
	RoomID string `json:"roomId"`
}

type SocketRoomInfoState struct {
	RoomID      string   `json:"roomId"`
	HasPassword bool     `json:"hasPassword"`
	UserCount   int      `json:"userCount"`
	Users       []string `json:"users"`
}

// SocketController serves the stateful binding. The server tracks which room
// each connection is in and a dropped connection leaves that room.
type SocketController struct {
	rooms    service.RoomInteractor
	hub      *relay.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewSocketController(rooms service.RoomInteractor, hub *relay.Hub, upgrader websocket.Upgrader, log *slog.Logger) *SocketController {
	return &SocketController{rooms: rooms, hub: hub, upgrader: upgrader, log: log}
}

type socketSession struct {
	ctrl   *SocketController
	peer   *wsPeer
	sub    *relay.Subscription
	roomID string
	userID string
	log    *slog.Logger
}

func (c *SocketController) Serve(ctx *gin.Context) {
	const op = "api.socket.serve"

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Info("websocket upgrade failed", slog.String("op", op), sl.Err(err))
		return
	}

	log := c.log.With(slog.String("op", op), slog.String("remote", ctx.ClientIP()))
	s := &socketSession{
		ctrl: c,
		peer: newWSPeer(conn, log),
		log:  log,
	}

	metrics.SocketSessions.Inc()
	defer metrics.SocketSessions.Dec()

	go s.peer.writePump()

	s.peer.prepareRead()
	for {
		var msg SocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("socket closed unexpectedly", sl.Err(err))
			}
			break
		}
		s.handle(msg)
	}

	// Disconnect counts as leaving.
	s.leave(context.Background())
	s.peer.close()
}

func (s *socketSession) handle(msg SocketMessage) {
	ctx := context.Background()

	switch msg.Event {
	case SocketCreateRoom:
		var req SocketJoinRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.fail("invalid create-room payload")
			return
		}
		s.create(ctx, req)
	case SocketJoinRoom:
		var req SocketJoinRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.fail("invalid join-room payload")
			return
		}
		s.join(ctx, req)
	case SocketLeaveRoom:
		s.leave(ctx)
		s.reply(SocketRoomLeft, struct{}{})
	case SocketGetRoomInfo:
		var req SocketRoomInfoRequest
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				s.fail("invalid get-room-info payload")
				return
			}
		}
		s.info(ctx, req)
	default:
		eventType, err := relay.ParseEventType(msg.Event)
		if err != nil {
			s.fail(err.Error())
			return
		}
		if s.roomID == "" {
			s.fail("join a room first")
			return
		}
		if err := s.ctrl.rooms.Relay(ctx, s.roomID, s.userID, eventType, msg.Data); err != nil {
			s.log.Debug("relay rejected", slog.String("event", msg.Event), sl.Err(err))
			s.fail(err.Error())
		}
	}
}

func (s *socketSession) create(ctx context.Context, req SocketJoinRequest) {
	if s.roomID != "" {
		s.leave(ctx)
	}

	room, err := s.ctrl.rooms.Create(ctx, req.UserID, req.Password)
	if err != nil {
		s.fail(err.Error())
		return
	}

	s.attach(room.ID, req.UserID, s.ctrl.hub.Subscribe(relay.Channel(room.ID)))
	s.reply(SocketRoomJoined, SocketRoomState{
		RoomID:        room.ID,
		UserID:        req.UserID,
		Host:          room.Host,
		ExistingUsers: []string{},
		UserCount:     room.MemberCount(),
		AllUsers:      room.MemberList(),
	})
}

// join subscribes before mutating membership so the joiner sees its own
// user-joined broadcast, like every other member.
func (s *socketSession) join(ctx context.Context, req SocketJoinRequest) {
	if req.RoomID == "" || req.UserID == "" {
		s.fail("roomId and userId are required")
		return
	}
	if s.roomID != "" {
		s.leave(ctx)
	}

	sub := s.ctrl.hub.Subscribe(relay.Channel(req.RoomID))
	res, err := s.ctrl.rooms.Join(ctx, req.RoomID, req.UserID, req.Password)
	if err != nil {
		sub.Close()
		s.fail(err.Error())
		return
	}

	s.attach(req.RoomID, req.UserID, sub)
	s.reply(SocketRoomJoined, SocketRoomState{
		RoomID:        res.Room.ID,
		UserID:        req.UserID,
		Host:          res.Room.Host,
		ExistingUsers: res.ExistingUsers,
		UserCount:     res.Room.MemberCount(),
		AllUsers:      res.Room.MemberList(),
	})
}

func (s *socketSession) info(ctx context.Context, req SocketRoomInfoRequest) {
	roomID := req.RoomID
	if roomID == "" {
		roomID = s.roomID
	}
	if roomID == "" {
		s.fail("roomId is required")
		return
	}

	room, err := s.ctrl.rooms.Info(ctx, roomID)
	if err != nil {
		s.fail(err.Error())
		return
	}
	s.reply(SocketRoomInfo, SocketRoomInfoState{
		RoomID:      room.ID,
		HasPassword: room.HasPassword(),
		UserCount:   room.MemberCount(),
		Users:       room.MemberList(),
	})
}

func (s *socketSession) attach(roomID, userID string, sub *relay.Subscription) {
	s.roomID = roomID
	s.userID = userID
	s.sub = sub
	s.log = s.log.With(slog.String("room_id", roomID), slog.String("user_id", userID))
	go s.peer.forward(sub)
}

func (s *socketSession) leave(ctx context.Context) {
	if s.roomID == "" {
		return
	}
	if s.sub != nil {
		s.sub.Close()
		s.sub = nil
	}
	if _, err := s.ctrl.rooms.Leave(ctx, s.roomID, s.userID); err != nil {
		s.log.Warn("leave on socket close failed", sl.Err(err))
	}
	s.roomID = ""
	s.userID = ""
}

func (s *socketSession) reply(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encode socket reply", sl.Err(err))
		return
	}
	s.peer.enqueue(SocketMessage{Event: event, Data: data})
}

func (s *socketSession) fail(message string) {
	s.reply(SocketError, map[string]string{"message": message})
}
