package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Aswin1819/talkmate-server/internal/auth"
	"github.com/Aswin1819/talkmate-server/internal/config"
	"github.com/Aswin1819/talkmate-server/internal/core"
)

// NewServer builds the HTTP server: a health probe and the room
// websocket endpoint. Room CRUD lives in the surrounding backend, not
// here.
func NewServer(controller *core.Controller, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	wsHandler := NewWSHandler(controller, cfg, logger)
	ws := router.Group("/ws")
	ws.Use(AuthMiddleware(authService, logger))
	ws.GET("/rooms/:room_id", wsHandler.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
