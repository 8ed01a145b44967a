package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/meetroom/internal/api/http/converter"
	"github.com/immxrtalbeast/meetroom/internal/auth"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/service"
)

type RoomController struct {
	rooms service.RoomInteractor
	log   *slog.Logger
}

func NewRoomController(rooms service.RoomInteractor, log *slog.Logger) *RoomController {
	return &RoomController{rooms: rooms, log: log}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	type request struct {
		UserID   string  `json:"userId"`
		Password *string `json:"password"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	// Signed-in callers may let the server mint their participant id.
	if req.UserID == "" {
		if identity, ok := auth.IdentityFrom(ctx); ok {
			req.UserID = domain.NewParticipantID(identity.Name)
		}
	}
	if req.UserID == "" {
		badRequest(ctx, "userId is required")
		return
	}

	room, err := c.rooms.Create(ctx.Request.Context(), req.UserID, req.Password)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.RoomCreatedToApi(room))
}

func (c *RoomController) JoinRoom(ctx *gin.Context) {
	type request struct {
		RoomID   string  `json:"roomId" binding:"required"`
		UserID   string  `json:"userId" binding:"required"`
		Password *string `json:"password"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	res, err := c.rooms.Join(ctx.Request.Context(), req.RoomID, req.UserID, req.Password)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.RoomJoinedToApi(res))
}

func (c *RoomController) LeaveRoom(ctx *gin.Context) {
	type request struct {
		RoomID string `json:"roomId" binding:"required"`
		UserID string `json:"userId" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	res, err := c.rooms.Leave(ctx.Request.Context(), req.RoomID, req.UserID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.RoomLeftToApi(res))
}

func (c *RoomController) RoomInfo(ctx *gin.Context) {
	type request struct {
		RoomID string `form:"roomId" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindQuery(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	room, err := c.rooms.Info(ctx.Request.Context(), req.RoomID)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.RoomInfoToApi(room))
}
