package repository

import "context"

// Broadcaster is an ephemeral fan-out channel for typing indicators and
// presence. Nothing is persisted; delivery is best-effort.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, onEvent func(payload []byte), onStatus StatusHandler) (Subscription, error)
}
