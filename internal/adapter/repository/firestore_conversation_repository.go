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

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	conversation.Participants = []string{conversation.CustomerID, conversation.CounterpartID}

	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now

	_, err := r.client.Collection("conversations").Doc(conversation.ID).Set(ctx, conversation)
	if err != nil {
		return errors.Network("Failed to create conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection("conversations").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.ConversationNotFound(id)
		}
		return nil, errors.Network("Failed to get conversation", err)
	}

	var conversation entity.Conversation
	if err := doc.DataTo(&conversation); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	return &conversation, nil
}

func (r *firestoreConversationRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	query := r.client.Collection("conversations").Where("participants", "array-contains", userID)

	iter := query.Documents(ctx)
	var conversations []*entity.Conversation

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while fetching conversations for user %s: %v", userID, err)
			return nil, errors.Network("Failed to fetch conversations", err)
		}

		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			log.Printf("Error parsing conversation data for user %s: %v", userID, err)
			continue // Skip bad data instead of failing
		}

		conversations = append(conversations, &conversation)
	}

	return conversations, nil
}

func (r *firestoreConversationRepository) FindDirect(ctx context.Context, userID, counterpartID string) (*entity.Conversation, error) {
	query := r.client.Collection("conversations").Where("participants", "array-contains", userID)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Network("Failed to query conversations", err)
	}

	for _, doc := range docs {
		var conversation entity.Conversation
		if err := doc.DataTo(&conversation); err != nil {
			continue // Skip malformed documents
		}
		if conversation.HasParticipant(counterpartID) {
			return &conversation, nil
		}
	}

	return nil, errors.NotFound("Conversation", nil)
}

func (r *firestoreConversationRepository) Update(ctx context.Context, conversation *entity.Conversation) error {
	conversation.UpdatedAt = time.Now()

	_, err := r.client.Collection("conversations").Doc(conversation.ID).Set(ctx, conversation)
	if err != nil {
		return errors.Network("Failed to update conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updatedAt"] = time.Now()

	_, err := r.client.Collection("conversations").Doc(id).Set(ctx, fields, firestore.MergeAll)
	if err != nil {
		return errors.Network("Failed to update conversation fields", err)
	}

	return nil
}

func (r *firestoreConversationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.Collection("conversations").Doc(id).Delete(ctx)
	if err != nil {
		return errors.Network("Failed to delete conversation", err)
	}

	return nil
}

func (r *firestoreConversationRepository) Subscribe(ctx context.Context, userID string, onEvent func(repository.ConversationEvent), onStatus repository.StatusHandler) (repository.Subscription, error) {
	query := r.client.Collection("conversations").Where("participants", "array-contains", userID)

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
				// The initial snapshot replays the whole result set as adds;
				// the fetch path already covers that window.
				first = false
				if onStatus != nil {
					onStatus(repository.ChannelSubscribed, nil)
				}
				continue
			}

			for _, change := range snap.Changes {
				var conversation entity.Conversation
				if err := change.Doc.DataTo(&conversation); err != nil {
					log.Printf("Error parsing conversation change for user %s: %v", userID, err)
					continue
				}

				switch change.Kind {
				case firestore.DocumentAdded:
					onEvent(repository.ConversationEvent{Kind: repository.EventInsert, Conversation: &conversation})
				case firestore.DocumentModified:
					onEvent(repository.ConversationEvent{Kind: repository.EventUpdate, Conversation: &conversation})
				case firestore.DocumentRemoved:
					onEvent(repository.ConversationEvent{Kind: repository.EventDelete, Conversation: &conversation})
				}
			}
		}
	}()

	return &feedSubscription{stop: snaps.Stop, cancel: cancel}, nil
}

type feedSubscription struct {
	stop   func()
	cancel context.CancelFunc
}

func (s *feedSubscription) Unsubscribe() {
	s.cancel()
	s.stop()
}
