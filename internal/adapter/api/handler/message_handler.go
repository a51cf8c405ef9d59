package handler

import (
	"github.com/labstack/echo/v4"

	"dmsync/internal/usecase"
	"dmsync/pkg/errors"
	"dmsync/pkg/response"
)

type MessageHandler struct {
	directory *usecase.ConversationDirectory
}

func NewMessageHandler(directory *usecase.ConversationDirectory) *MessageHandler {
	return &MessageHandler{
		directory: directory,
	}
}

type setTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

func (h *MessageHandler) current() (*usecase.MessageSynchronizer, error) {
	synchronizer := h.directory.Messages()
	if synchronizer == nil {
		return nil, errors.BadRequest("No conversation is open", nil)
	}
	return synchronizer, nil
}

// ListMessages returns the open conversation's message state.
func (h *MessageHandler) ListMessages(c echo.Context) error {
	synchronizer, err := h.current()
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, synchronizer.Snapshot())
}

// SendMessage sends into the open conversation.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	synchronizer, err := h.current()
	if err != nil {
		return response.Error(c, err)
	}

	message, err := synchronizer.Send(c.Request().Context(), usecase.SendMessageInput{
		Content:   req.Content,
		ImageURL:  req.ImageURL,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// MarkSeen marks every message from the other side as seen.
func (h *MessageHandler) MarkSeen(c echo.Context) error {
	synchronizer, err := h.current()
	if err != nil {
		return response.Error(c, err)
	}

	if err := synchronizer.MarkSeen(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	h.directory.UpdateUnreadCount(synchronizer.Snapshot().ConversationID, 0)

	return response.Success(c, synchronizer.Snapshot())
}

// DeleteMessage soft-deletes a message in the open conversation.
func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	synchronizer, err := h.current()
	if err != nil {
		return response.Error(c, err)
	}

	if err := synchronizer.DeleteMessage(c.Request().Context(), c.Param("id")); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, synchronizer.Snapshot())
}

// SetTyping broadcasts the typing indicator for the open conversation.
func (h *MessageHandler) SetTyping(c echo.Context) error {
	var req setTypingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	synchronizer, err := h.current()
	if err != nil {
		return response.Error(c, err)
	}

	synchronizer.SetTyping(c.Request().Context(), req.IsTyping)
	return response.Success(c, map[string]bool{"is_typing": req.IsTyping})
}
