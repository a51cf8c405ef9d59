package entity

import "time"

type Conversation struct {
	ID                  string    `json:"id" firestore:"id"`
	CustomerID          string    `json:"customer_id,omitempty" firestore:"customerId,omitempty"`
	CounterpartID       string    `json:"counterpart_id,omitempty" firestore:"counterpartId,omitempty"`
	Participants        []string  `json:"participants" firestore:"participants"` // Denormalized for array-contains queries
	LastMessage         string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt       time.Time `json:"last_message_at" firestore:"lastMessageAt"`
	LastMessageSenderID string    `json:"last_message_sender_id,omitempty" firestore:"lastMessageSenderId,omitempty"`
	UnreadCountA        int       `json:"unread_count_a" firestore:"unreadCountA"` // Customer side
	UnreadCountB        int       `json:"unread_count_b" firestore:"unreadCountB"` // Counterpart side
	IsPinned            bool      `json:"is_pinned" firestore:"isPinned"`
	IsEphemeral         bool      `json:"is_ephemeral" firestore:"isEphemeral"`
	HasMessages         bool      `json:"has_messages" firestore:"hasMessages"`
	CreatedAt           time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt           time.Time `json:"updated_at" firestore:"updatedAt"`
}

// CounterpartOf returns the other participant's ID relative to userID.
func (c *Conversation) CounterpartOf(userID string) string {
	if c.CustomerID == userID {
		return c.CounterpartID
	}
	return c.CustomerID
}

// UnreadFor returns the unread counter owned by userID's side.
func (c *Conversation) UnreadFor(userID string) int {
	if c.CustomerID == userID {
		return c.UnreadCountA
	}
	return c.UnreadCountB
}

// SetUnreadFor overwrites the unread counter owned by userID's side.
func (c *Conversation) SetUnreadFor(userID string, count int) {
	if c.CustomerID == userID {
		c.UnreadCountA = count
	} else {
		c.UnreadCountB = count
	}
}

// IncrementUnreadOther bumps the counter of every side that did not author the
// message. Exactly one side in a direct conversation.
func (c *Conversation) IncrementUnreadOther(senderID string) {
	if c.CustomerID == senderID {
		c.UnreadCountB++
	} else {
		c.UnreadCountA++
	}
}

// RecordMessage folds a freshly created message into the denormalized preview
// fields. A conversation that has messages can never stay ephemeral.
func (c *Conversation) RecordMessage(m *Message) {
	c.LastMessage = m.Preview()
	c.LastMessageAt = m.CreatedAt
	c.LastMessageSenderID = m.SenderID
	c.HasMessages = true
	c.IsEphemeral = false
	c.IncrementUnreadOther(m.SenderID)
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.CustomerID == userID || c.CounterpartID == userID
}
