package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mkazansky/dialogd/internal/auth"
	"github.com/mkazansky/dialogd/internal/config"
	"github.com/mkazansky/dialogd/internal/core"
	"github.com/mkazansky/dialogd/internal/store"
)

// NewServer builds the HTTP server: REST endpoints for the surrounding
// collaborators (auth, conversation listing, the mark-as-read trigger)
// plus the WebSocket endpoint the chat core lives behind.
func NewServer(chat *core.ChatService, receipts *core.ReceiptService, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	convHandlers := NewConversationHandlers(st, receipts, logger)
	api := router.Group("/api", AuthMiddleware(authService, logger))
	{
		api.GET("/conversations", convHandlers.ListConversations)
		api.POST("/conversations", convHandlers.StartConversation)
		api.POST("/conversations/:id/read", convHandlers.MarkAsRead)
	}

	// The WebSocket endpoint lives on the plain mux: the upgrade hijacks
	// the connection, which gin's response writer does not allow once a
	// header has been written.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws/", NewWSHandler(chat, authService, logger, cfg.SessionBuffer))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
