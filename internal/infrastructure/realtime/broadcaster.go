package realtime

import (
	"context"

	redis "github.com/redis/go-redis/v9"

	"dmsync/internal/domain/repository"
)

// RedisBroadcaster implements repository.Broadcaster over Redis pub/sub.
// Typing and presence events are ephemeral: nothing is persisted and a lost
// publish is simply a lost indicator.
type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

var _ repository.Broadcaster = (*RedisBroadcaster)(nil)

func (b *RedisBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, topic string, onEvent func([]byte), onStatus repository.StatusHandler) (repository.Subscription, error) {
	ps := b.client.Subscribe(ctx, topic)

	// Receive forces the SUBSCRIBE round trip so a dead broker fails the dial
	// instead of the first delivery.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if onStatus != nil {
		onStatus(repository.ChannelSubscribed, nil)
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					if onStatus != nil {
						onStatus(repository.ChannelError, context.Canceled)
					}
					return
				}
				onEvent([]byte(msg.Payload))
			}
		}
	}()

	return &broadcastSubscription{ps: ps, cancel: cancel}, nil
}

type broadcastSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
}

func (s *broadcastSubscription) Unsubscribe() {
	s.cancel()
	_ = s.ps.Close()
}
