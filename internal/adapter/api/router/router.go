package router

import (
	"github.com/labstack/echo/v4"

	"dmsync/internal/adapter/api/handler"
)

func Setup(
	e *echo.Echo,
	conversationHandler *handler.ConversationHandler,
	messageHandler *handler.MessageHandler,
	wsHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
) {
	SetupConversationRouter(e, conversationHandler)
	SetupMessageRouter(e, messageHandler)
	SetupWebSocketRouter(e, wsHandler)
	SetupHealthRouter(e, healthHandler)
}
