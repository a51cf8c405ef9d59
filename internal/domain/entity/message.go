package entity

import "time"

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"

	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusSeen      = "seen"
)

type Message struct {
	ID             string     `json:"id" firestore:"id"`
	ConversationID string     `json:"conversation_id" firestore:"conversationId"`
	SenderID       string     `json:"sender_id" firestore:"senderId"`
	Type           string     `json:"type" firestore:"type"` // "text", "image"
	Content        string     `json:"content" firestore:"content"`
	ImageURL       string     `json:"image_url,omitempty" firestore:"imageUrl,omitempty"`
	Status         string     `json:"status" firestore:"status"` // "sent", "delivered", "seen"
	ReplyToID      string     `json:"reply_to_id,omitempty" firestore:"replyToId,omitempty"`
	ReplyToSender  string     `json:"reply_to_sender,omitempty" firestore:"replyToSenderName,omitempty"`
	ReplyToContent string     `json:"reply_to_content,omitempty" firestore:"replyToContent,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" firestore:"deletedAt,omitempty"`
	DeletedBy      string     `json:"deleted_by,omitempty" firestore:"deletedBy,omitempty"`
	CreatedAt      time.Time  `json:"created_at" firestore:"createdAt"`
}

// Deleted reports whether the message carries a soft-delete marker. The row is
// kept for rendering a placeholder but excluded from previews.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Preview is the text used for the parent conversation's last-message field.
func (m *Message) Preview() string {
	if m.Deleted() {
		return ""
	}
	if m.Type == MessageTypeImage && m.Content == "" {
		return "[image]"
	}
	return m.Content
}
