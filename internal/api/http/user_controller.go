package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/meetroom/internal/api/http/converter"
	"github.com/immxrtalbeast/meetroom/internal/auth"
	"github.com/immxrtalbeast/meetroom/internal/service"
)

type UserController struct {
	users service.UserInteractor
	log   *slog.Logger
}

func NewUserController(users service.UserInteractor, log *slog.Logger) *UserController {
	return &UserController{users: users, log: log}
}

func (c *UserController) Register(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
		Name     string `json:"name" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	res, err := c.users.Register(ctx.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "registered",
		"token":   res.Token,
		"user":    converter.UserToApi(res.User),
	})
}

func (c *UserController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindingFailed(ctx, err)
		return
	}

	res, err := c.users.Login(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   res.Token,
		"user":    converter.UserToApi(res.User),
	})
}

func (c *UserController) Verify(ctx *gin.Context) {
	token := auth.BearerToken(ctx.GetHeader("Authorization"))
	if token == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "token is missing"})
		return
	}

	user, err := c.users.Verify(ctx.Request.Context(), token)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    converter.UserToApi(user),
	})
}
