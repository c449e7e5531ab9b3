package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"github.com/readowl/realtime/internal/config"
	"github.com/readowl/realtime/internal/gateway"
	"github.com/readowl/realtime/internal/handler"
	"github.com/readowl/realtime/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Message *handler.MessageHandler
	Unread  *handler.UnreadHandler
	Feed    *handler.FeedHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, handlers *Handlers, wsServer *gateway.WsServer) {
	cfg := config.GlobalConfig

	h.Use(middleware.CORS())

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	// Message routes (auth required)
	msgGroup := h.Group("/msg", middleware.JWTAuth())
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/pull", handlers.Message.PullMessages)
		msgGroup.POST("/:id/delete", handlers.Message.DeleteMessage)
	}

	// Read position and unread routes (auth required)
	readGroup := h.Group("/read", middleware.JWTAuth())
	{
		readGroup.POST("/mark", handlers.Unread.MarkRead)
	}
	h.GET("/unread/summary", middleware.JWTAuth(), handlers.Unread.UnreadSummary)

	// Feed routes (auth required)
	feedGroup := h.Group("/feed", middleware.JWTAuth())
	{
		feedGroup.GET("/:projection", handlers.Feed.FeedPage)
	}

	// Activity routes (auth required)
	activityGroup := h.Group("/activity", middleware.JWTAuth())
	{
		activityGroup.POST("/dispatch", handlers.Feed.DispatchActivity)
		activityGroup.GET("/:id", handlers.Feed.GetActivity)
		activityGroup.POST("/:id/delete", handlers.Feed.DeleteActivity)
		activityGroup.POST("/:id/metadata", handlers.Feed.UpdateActivityMetadata)
	}

	// WebSocket route using hertz-contrib/websocket with origin validation
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// No origin header means a same-origin request or non-browser client
	if origin == "" {
		return true
	}

	if len(allowedOrigins) == 0 {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}

	return false
}
