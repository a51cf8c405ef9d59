package handler

import (
	"github.com/labstack/echo/v4"

	"dmsync/internal/usecase"
	"dmsync/pkg/errors"
	"dmsync/pkg/response"
)

type ConversationHandler struct {
	directory *usecase.ConversationDirectory
}

func NewConversationHandler(directory *usecase.ConversationDirectory) *ConversationHandler {
	return &ConversationHandler{
		directory: directory,
	}
}

type selectConversationRequest struct {
	Lock bool `json:"lock"`
}

type startConversationRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
}

type sendMessageRequest struct {
	Content   string `json:"content" validate:"required_without=ImageURL"`
	ImageURL  string `json:"image_url,omitempty" validate:"omitempty,url"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

type pinConversationRequest struct {
	Pinned bool `json:"pinned"`
}

// ListConversations returns the full directory state: the ordered conversation
// list, the selection, the pending shell and the connection status.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	return response.Success(c, h.directory.Snapshot())
}

// SelectConversation opens a conversation and starts its message channel.
func (h *ConversationHandler) SelectConversation(c echo.Context) error {
	var req selectConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.directory.Select(c.Request().Context(), c.Param("id"), req.Lock); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, h.directory.Snapshot())
}

// StartConversation targets a recipient: selects the existing conversation or
// opens a pending shell when none exists yet.
func (h *ConversationHandler) StartConversation(c echo.Context) error {
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.directory.StartWith(c.Request().Context(), req.RecipientID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, h.directory.Snapshot())
}

// SendFirstMessage persists the pending conversation along with its first
// message.
func (h *ConversationHandler) SendFirstMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	view, err := h.directory.SendFirstMessage(c.Request().Context(), usecase.SendMessageInput{
		Content:   req.Content,
		ImageURL:  req.ImageURL,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, view)
}

// CancelPending drops the pending shell without any remote effect.
func (h *ConversationHandler) CancelPending(c echo.Context) error {
	h.directory.CancelPending()
	return response.Success(c, h.directory.Snapshot())
}

// PinConversation toggles the pinned flag.
func (h *ConversationHandler) PinConversation(c echo.Context) error {
	var req pinConversationRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := h.directory.Pin(c.Request().Context(), c.Param("id"), req.Pinned); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, h.directory.Snapshot())
}

// MarkConversationRead marks the open conversation's messages seen and zeroes
// the caller's unread counter.
func (h *ConversationHandler) MarkConversationRead(c echo.Context) error {
	id := c.Param("id")
	synchronizer := h.directory.Messages()
	if synchronizer == nil || h.directory.Snapshot().SelectedConversationID != id {
		return response.Error(c, errors.BadRequest("Conversation is not open", nil))
	}

	if err := synchronizer.MarkSeen(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}
	h.directory.UpdateUnreadCount(id, 0)

	return response.Success(c, h.directory.Snapshot())
}

// ConnectionStatus reports the supervised list channel's state.
func (h *ConversationHandler) ConnectionStatus(c echo.Context) error {
	return response.Success(c, map[string]interface{}{
		"status": h.directory.ConnectionStatus(),
	})
}

// RetryConnection restarts the list channel after the supervisor gave up.
func (h *ConversationHandler) RetryConnection(c echo.Context) error {
	h.directory.RetryConnection()
	return response.Success(c, map[string]interface{}{
		"status": h.directory.ConnectionStatus(),
	})
}
