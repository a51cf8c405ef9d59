package router

import (
	"github.com/labstack/echo/v4"

	"dmsync/internal/adapter/api/handler"
)

// SetupConversationRouter sets up all conversation-list routes.
func SetupConversationRouter(e *echo.Echo, conversationHandler *handler.ConversationHandler) {
	conversationGroup := e.Group("/v1/conversations")

	conversationGroup.GET("", conversationHandler.ListConversations)            // GET /v1/conversations - Directory snapshot
	conversationGroup.POST("/start", conversationHandler.StartConversation)     // POST /v1/conversations/start - Target a recipient
	conversationGroup.POST("/:id/select", conversationHandler.SelectConversation) // POST /v1/conversations/:id/select - Open a conversation
	conversationGroup.PUT("/:id/pin", conversationHandler.PinConversation)      // PUT /v1/conversations/:id/pin - Toggle pin
	conversationGroup.PUT("/:id/read", conversationHandler.MarkConversationRead) // PUT /v1/conversations/:id/read - Mark read

	// Pending conversation lifecycle
	conversationGroup.POST("/pending/messages", conversationHandler.SendFirstMessage) // POST /v1/conversations/pending/messages - First send persists
	conversationGroup.DELETE("/pending", conversationHandler.CancelPending)           // DELETE /v1/conversations/pending - Drop the shell

	// Supervised list channel
	e.GET("/v1/connection", conversationHandler.ConnectionStatus)
	e.POST("/v1/connection/retry", conversationHandler.RetryConnection)
}
