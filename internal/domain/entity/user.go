package entity

import (
	"time"
)

// UserProfile is the minimal identity shape the directory needs to render a
// conversation counterpart. It is resolved from the live identity table first,
// the fallback profile table second, and synthesized as a placeholder last.
type UserProfile struct {
	ID        string    `json:"id" firestore:"id"`
	Username  string    `json:"username" firestore:"username"`
	FullName  string    `json:"full_name,omitempty" firestore:"fullName,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	Online    bool      `json:"online" firestore:"online"`
	LastSeen  time.Time `json:"last_seen" firestore:"lastSeen"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// PendingConversation is an in-memory-only conversation shell. No row exists
// until the first message is sent.
type PendingConversation struct {
	RecipientID string       `json:"recipient_id"`
	Recipient   *UserProfile `json:"recipient,omitempty"`
}
