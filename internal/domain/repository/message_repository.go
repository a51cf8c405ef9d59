package repository

import (
	"context"

	"dmsync/internal/domain/entity"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error)
	UpdateFields(ctx context.Context, conversationID, messageID string, fields map[string]interface{}) error

	// MarkSeen bulk-updates every message in the conversation not authored by
	// viewerID and not already seen. Returns the updated rows.
	MarkSeen(ctx context.Context, conversationID, viewerID string) ([]*entity.Message, error)

	Subscribe(ctx context.Context, conversationID string, onEvent func(MessageEvent), onStatus StatusHandler) (Subscription, error)
}
