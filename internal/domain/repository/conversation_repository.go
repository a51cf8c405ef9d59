package repository

import (
	"context"

	"dmsync/internal/domain/entity"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error)
	FindDirect(ctx context.Context, userID, counterpartID string) (*entity.Conversation, error)
	Update(ctx context.Context, conversation *entity.Conversation) error
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error

	// Subscribe opens a change feed over the user's conversations. Events are
	// delivered until the subscription is closed or the feed drops, in which
	// case onStatus reports the failure.
	Subscribe(ctx context.Context, userID string, onEvent func(ConversationEvent), onStatus StatusHandler) (Subscription, error)
}
