package repository

import (
	"context"

	"dmsync/internal/domain/entity"
)

// ProfileRepository serves counterpart identity lookups. Two implementations
// exist: the live identity table and the fallback profile table. BatchGet
// returns only the profiles it finds; missing IDs are simply absent from the
// result map, never an error.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*entity.UserProfile, error)
	BatchGet(ctx context.Context, ids []string) (map[string]*entity.UserProfile, error)
}
