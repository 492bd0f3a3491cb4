// Package router contains routing and server setup for the HTTP facade.
package router

import (
	"storefront/internal/delivery/http/middleware"
	"storefront/internal/delivery/http/router/handler"
	"storefront/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	NotificationHandler *handler.NotificationHandler
	ChatHandler         *handler.ChatHandler
	SystemHandler       *handler.SystemHandler
	RequestID           *middleware.RequestIDMiddleware
	Metrics             *metrics.Metrics
}

// router holds all the handlers that need to be registered.
type router struct {
	notificationHandler *handler.NotificationHandler
	chatHandler         *handler.ChatHandler
	systemHandler       *handler.SystemHandler
	requestID           *middleware.RequestIDMiddleware
	metrics             *metrics.Metrics
}

// NewRouter is the constructor for the router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		notificationHandler: params.NotificationHandler,
		chatHandler:         params.ChatHandler,
		systemHandler:       params.SystemHandler,
		requestID:           params.RequestID,
		metrics:             params.Metrics,
	}
}

// RegisterRoutes sets up all the API routes of the facade.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.Use(r.requestID.Process)

	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(r.metrics.Handler()))

	e.GET("/connection", r.systemHandler.Connection)
	e.GET("/alerts", r.systemHandler.Alerts)

	settingsGroup := e.Group("/settings")
	{
		settingsGroup.GET("/audio", r.systemHandler.GetAudioSetting)
		settingsGroup.PUT("/audio", r.systemHandler.SetAudioSetting)
	}

	notificationGroup := e.Group("/notifications")
	{
		notificationGroup.GET("", r.notificationHandler.List)
		notificationGroup.GET("/counters", r.notificationHandler.Counters)
		notificationGroup.POST("/refresh", r.notificationHandler.Refresh)
		notificationGroup.PUT("/read-all", r.notificationHandler.MarkAllRead)
		notificationGroup.PUT("/:id/read", r.notificationHandler.MarkRead)
		notificationGroup.DELETE("", r.notificationHandler.DeleteAll)
		notificationGroup.DELETE("/:id", r.notificationHandler.Delete)
	}

	chatGroup := e.Group("/chat")
	{
		chatGroup.GET("/conversations", r.chatHandler.Conversations)
		chatGroup.GET("/conversations/:key", r.chatHandler.Conversation)
		chatGroup.POST("/conversations/:key/history", r.chatHandler.LoadHistory)
		chatGroup.POST("/conversations/:key/messages", r.chatHandler.SendMessage)
		chatGroup.PUT("/conversations/:key/messages/:id/read", r.chatHandler.MarkRead)
		chatGroup.POST("/conversations/:key/read-all", r.chatHandler.MarkAllRead)
	}
}
