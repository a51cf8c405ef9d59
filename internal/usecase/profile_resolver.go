package usecase

import "dmsync/internal/domain/entity"

// ResolveProfile picks the first usable profile for id, in priority order:
// live identity row, fallback profile row, synthesized placeholder. A
// conversation is never dropped because both lookups missed.
func ResolveProfile(id string, live, fallback *entity.UserProfile) *entity.UserProfile {
	if p := normalizeProfile(live); p != nil {
		return p
	}
	if p := normalizeProfile(fallback); p != nil {
		return p
	}
	return &entity.UserProfile{
		ID:       id,
		Username: "Unknown user",
	}
}

// normalizeProfile rejects rows too empty to render.
func normalizeProfile(p *entity.UserProfile) *entity.UserProfile {
	if p == nil || p.ID == "" {
		return nil
	}
	if p.Username == "" && p.FullName == "" {
		return nil
	}
	if p.Username == "" {
		copied := *p
		copied.Username = copied.FullName
		return &copied
	}
	return p
}
