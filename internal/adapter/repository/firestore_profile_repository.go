package repository

import (
	"context"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"dmsync/internal/domain/entity"
	"dmsync/internal/domain/repository"
	"dmsync/pkg/errors"
)

type firestoreProfileRepository struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreIdentityRepository reads the live identity table. Preferred
// source for counterpart enrichment.
func NewFirestoreIdentityRepository(client *firestore.Client) repository.ProfileRepository {
	return &firestoreProfileRepository{client: client, collection: "users"}
}

// NewFirestoreProfileRepository reads the fallback profile table, consulted
// when the live identity lookup misses.
func NewFirestoreProfileRepository(client *firestore.Client) repository.ProfileRepository {
	return &firestoreProfileRepository{client: client, collection: "profiles"}
}

func (r *firestoreProfileRepository) GetByID(ctx context.Context, id string) (*entity.UserProfile, error) {
	doc, err := r.client.Collection(r.collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.UserNotFound(id, err)
		}
		return nil, errors.Network("Failed to get profile", err)
	}

	var profile entity.UserProfile
	if err := doc.DataTo(&profile); err != nil {
		return nil, errors.Internal("Failed to parse profile data", err)
	}
	profile.ID = doc.Ref.ID

	return &profile, nil
}

func (r *firestoreProfileRepository) BatchGet(ctx context.Context, ids []string) (map[string]*entity.UserProfile, error) {
	result := make(map[string]*entity.UserProfile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, r.client.Collection(r.collection).Doc(id))
	}

	docs, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, errors.Network("Failed to batch get profiles", err)
	}

	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		var profile entity.UserProfile
		if err := doc.DataTo(&profile); err != nil {
			log.Printf("Error parsing profile data for %s: %v", doc.Ref.ID, err)
			continue
		}
		profile.ID = doc.Ref.ID
		result[profile.ID] = &profile
	}

	return result, nil
}
