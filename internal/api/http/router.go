package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetroom/internal/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig shapes the HTTP surface. With RequireAuth the room endpoints
// reject anonymous callers instead of treating them as guests.
type RouterConfig struct {
	AllowOrigins []string
	RequireAuth  bool
}

type Controllers struct {
	Rooms     *RoomController
	Users     *UserController
	Signaling *SignalingController
	Sockets   *SocketController
}

func NewUpgrader(allowOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

func SetupRouter(cfg RouterConfig, tokens auth.TokenParser, c Controllers) *gin.Engine {
	useWireFieldNames()
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowOrigins = cfg.AllowOrigins
	config.AllowCredentials = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if c.Users != nil {
		users := router.Group("/auth")
		users.POST("/register", c.Users.Register)
		users.POST("/login", c.Users.Login)
		users.GET("/verify", c.Users.Verify)
	}

	if c.Rooms != nil {
		rooms := router.Group("/rooms")
		switch {
		case tokens != nil && cfg.RequireAuth:
			rooms.Use(auth.RequireAuth(tokens))
		case tokens != nil:
			rooms.Use(auth.OptionalAuth(tokens))
		}
		rooms.POST("/create", c.Rooms.CreateRoom)
		rooms.POST("/join", c.Rooms.JoinRoom)
		rooms.POST("/leave", c.Rooms.LeaveRoom)
		rooms.GET("/info", c.Rooms.RoomInfo)
	}

	if c.Signaling != nil {
		signaling := router.Group("/signaling")
		signaling.POST("/trigger", c.Signaling.Trigger)
		signaling.GET("/subscribe", c.Signaling.Subscribe)
	}

	if c.Sockets != nil {
		router.GET("/ws", c.Sockets.Serve)
	}

	return router
}
