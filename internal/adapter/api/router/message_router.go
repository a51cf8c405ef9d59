package router

import (
	"github.com/labstack/echo/v4"

	"dmsync/internal/adapter/api/handler"
)

// SetupMessageRouter sets up the routes for the open conversation.
func SetupMessageRouter(e *echo.Echo, messageHandler *handler.MessageHandler) {
	messageGroup := e.Group("/v1/messages")

	messageGroup.GET("", messageHandler.ListMessages)        // GET /v1/messages - Message snapshot
	messageGroup.POST("", messageHandler.SendMessage)        // POST /v1/messages - Send message
	messageGroup.PUT("/read", messageHandler.MarkSeen)       // PUT /v1/messages/read - Mark seen
	messageGroup.DELETE("/:id", messageHandler.DeleteMessage) // DELETE /v1/messages/:id - Soft delete

	e.POST("/v1/typing", messageHandler.SetTyping) // POST /v1/typing - Typing indicator
}
