package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pvolkhin/chatgram-server/internal/auth"
	"github.com/pvolkhin/chatgram-server/internal/config"
	"github.com/pvolkhin/chatgram-server/internal/core"
	"github.com/pvolkhin/chatgram-server/internal/store"
)

// NewServer builds the HTTP server: REST API, websocket endpoint and health check.
func NewServer(hub *core.Hub, pipeline *core.Pipeline, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, st, logger)))

	apiHandlers := NewAPIHandlers(authService, logger)
	userHandlers := NewUserHandlers(st, logger)
	chatHandlers := NewChatHandlers(hub, pipeline, st, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authorized := api.Group("")
	authorized.Use(AuthMiddleware(authService, logger))
	authorized.GET("/users/search", userHandlers.SearchUsers)
	authorized.GET("/chats", chatHandlers.ListChats)
	authorized.POST("/chats", chatHandlers.CreateChat)
	authorized.GET("/chats/:id/messages", chatHandlers.ListMessages)
	authorized.POST("/chats/:id/messages", chatHandlers.SendMessage)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
