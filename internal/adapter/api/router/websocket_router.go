package router

import (
	"github.com/labstack/echo/v4"

	"dmsync/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up the state-push WebSocket route.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	e.GET("/ws", wsHandler.HandleWebSocket)
}
