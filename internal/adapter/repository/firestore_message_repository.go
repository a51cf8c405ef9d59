package repository

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dmsync/internal/domain/entity"
	"dmsync/internal/domain/repository"
	"dmsync/pkg/errors"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messages(conversationID string) *firestore.CollectionRef {
	return r.client.Collection("conversations").Doc(conversationID).Collection("messages")
}

func (r *firestoreMessageRepository) Create(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	_, err := r.messages(message.ConversationID).Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Network("Failed to create message", err)
	}

	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(conversationID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Network("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	query := r.messages(conversationID).OrderBy("createdAt", firestore.Asc)

	iter := query.Documents(ctx)
	var messages []*entity.Message

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for conversation %s: %v", conversationID, err)
			return nil, errors.Network("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			log.Printf("Error parsing message data for conversation %s: %v", conversationID, err)
			continue
		}

		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *firestoreMessageRepository) UpdateFields(ctx context.Context, conversationID, messageID string, fields map[string]interface{}) error {
	_, err := r.messages(conversationID).Doc(messageID).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return errors.Network("Failed to update message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) MarkSeen(ctx context.Context, conversationID, viewerID string) ([]*entity.Message, error) {
	// Firestore treats != as an inequality filter needing a composite index,
	// so filter in memory like the rest of the list paths.
	all, err := r.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	var updated []*entity.Message
	for _, message := range all {
		if message.SenderID == viewerID || message.Status == entity.MessageStatusSeen {
			continue
		}

		message.Status = entity.MessageStatusSeen
		_, err := r.messages(conversationID).Doc(message.ID).Set(ctx, map[string]interface{}{
			"status": entity.MessageStatusSeen,
		}, firestore.MergeAll)
		if err != nil {
			return updated, errors.Network("Failed to mark message seen", err)
		}
		updated = append(updated, message)
	}

	return updated, nil
}

func (r *firestoreMessageRepository) Subscribe(ctx context.Context, conversationID string, onEvent func(repository.MessageEvent), onStatus repository.StatusHandler) (repository.Subscription, error) {
	query := r.messages(conversationID).OrderBy("createdAt", firestore.Asc)

	subCtx, cancel := context.WithCancel(ctx)
	snaps := query.Snapshots(subCtx)

	go func() {
		first := true
		for {
			snap, err := snaps.Next()
			if err != nil {
				if subCtx.Err() != nil || err == iterator.Done {
					return
				}
				if onStatus != nil {
					if status.Code(err) == codes.DeadlineExceeded {
						onStatus(repository.ChannelTimedOut, err)
					} else {
						onStatus(repository.ChannelError, err)
					}
				}
				return
			}

			if first {
				first = false
				if onStatus != nil {
					onStatus(repository.ChannelSubscribed, nil)
				}
				continue
			}

			for _, change := range snap.Changes {
				var message entity.Message
				if err := change.Doc.DataTo(&message); err != nil {
					log.Printf("Error parsing message change for conversation %s: %v", conversationID, err)
					continue
				}

				switch change.Kind {
				case firestore.DocumentAdded:
					onEvent(repository.MessageEvent{Kind: repository.EventInsert, Message: &message})
				case firestore.DocumentModified:
					onEvent(repository.MessageEvent{Kind: repository.EventUpdate, Message: &message})
				case firestore.DocumentRemoved:
					onEvent(repository.MessageEvent{Kind: repository.EventDelete, Message: &message})
				}
			}
		}
	}()

	return &feedSubscription{stop: snaps.Stop, cancel: cancel}, nil
}
