// Package server wires the relay's HTTP surface.
package server

import (
	"log/slog"
	"net/http"
	"time"

	_ "chatapp/backend/docs" // registers the swagger spec
	"chatapp/backend/internal/handler"
	"chatapp/backend/internal/hub"
	"chatapp/backend/internal/limiter"
	"chatapp/backend/internal/presence"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps are the components behind the routes. Archive and Limiter are optional.
type Deps struct {
	Hub              *hub.Hub
	Publisher        hub.Publisher
	Presence         presence.Store
	Archive          handler.Archive
	Limiter          *limiter.Manager
	RateLimit        int
	RateWindow       time.Duration
	SubscriberBuffer int
	Log              *slog.Logger
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.Default()

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	presenceHandler := handler.NewPresenceHandler(d.Presence, d.Log)
	messageHandler := handler.NewMessageHandler(d.Publisher, d.Archive, d.Log)
	channelHandler := handler.NewChannelHandler(d.Hub, d.SubscriberBuffer, d.Log)

	submit := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if d.Limiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{limiter.Middleware(d.Limiter, "message", d.RateLimit, d.RateWindow, d.Log), h}
	}

	userRoutes := router.Group("/users")
	{
		userRoutes.GET("", presenceHandler.ListPresence)
		userRoutes.PUT("/:username", presenceHandler.RegisterPresence)
		userRoutes.DELETE("/:username", presenceHandler.DeregisterPresence)
	}

	router.POST("/message", submit(messageHandler.PostMessage)...)

	channelRoutes := router.Group("/channels/:channel")
	{
		channelRoutes.POST("/message", submit(messageHandler.PostChannelMessage)...)
		channelRoutes.GET("/messages", messageHandler.GetMessages)
		channelRoutes.GET("/ws", channelHandler.Subscribe)
		channelRoutes.GET("/events", channelHandler.Stream)
	}

	return router
}
