package repository

import "dmsync/internal/domain/entity"

// EventKind is the change-feed row operation.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// ChannelStatus reports the health of a change-feed or broadcast subscription.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "subscribed"
	ChannelError      ChannelStatus = "error"
	ChannelTimedOut   ChannelStatus = "timedOut"
)

// StatusHandler receives subscription status transitions. err is nil for
// ChannelSubscribed.
type StatusHandler func(status ChannelStatus, err error)

type ConversationEvent struct {
	Kind         EventKind
	Conversation *entity.Conversation
}

type MessageEvent struct {
	Kind    EventKind
	Message *entity.Message
}

// Subscription is a handle on an open change feed or broadcast topic.
type Subscription interface {
	Unsubscribe()
}
