package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetroom/internal/metrics"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/internal/service"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
)

// SignalingController serves the stateless binding: clients trigger events
// over HTTP and receive a room channel as a websocket stream.
type SignalingController struct {
	rooms    service.RoomInteractor
	hub      *relay.Hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewSignalingController(rooms service.RoomInteractor, hub *relay.Hub, upgrader websocket.Upgrader, log *slog.Logger) *SignalingController {
	return &SignalingController{rooms: rooms, hub: hub, upgrader: upgrader, log: log}
}

func (c *SignalingController) Trigger(ctx *gin.Context) {
	type request struct {
		Channel string          `json:"channel" binding:"required"`
		Event   string          `json:"event" binding:"required"`
		Data    json.RawMessage `json:"data" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	if err := c.rooms.Trigger(ctx.Request.Context(), req.Channel, req.Event, req.Data); err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

func (c *SignalingController) Subscribe(ctx *gin.Context) {
	const op = "api.signaling.subscribe"

	channel := ctx.Query("channel")
	if _, ok := relay.RoomFromChannel(channel); !ok {
		badRequest(ctx, "channel must be room-<roomId>")
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Info("websocket upgrade failed", slog.String("op", op), sl.Err(err))
		return
	}

	log := c.log.With(slog.String("op", op), slog.String("channel", channel))
	peer := newWSPeer(conn, log)
	sub := c.hub.Subscribe(channel)

	metrics.SocketSessions.Inc()
	defer metrics.SocketSessions.Dec()

	go peer.writePump()
	go peer.forward(sub)
	log.Debug("subscriber attached", slog.String("subscription", sub.ID))

	// Subscribers only listen; reading keeps pongs flowing and notices the close.
	peer.prepareRead()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	sub.Close()
	peer.close()
	log.Debug("subscriber detached", slog.String("subscription", sub.ID))
}
