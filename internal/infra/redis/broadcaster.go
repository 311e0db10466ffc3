package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"battle-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Broadcaster fans room events out over Redis Pub/Sub, one channel per room.
// Only the instance holding a room's lease publishes on its channel, so the
// stream keeps that actor's commit order.
type Broadcaster struct {
	client *redis.Client
	buffer int
	log    logrus.FieldLogger
}

func NewBroadcaster(client *redis.Client, buffer int, log logrus.FieldLogger) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Broadcaster{client: client, buffer: buffer, log: log}
}

func channel(roomID string) string {
	return "battle:events:" + roomID
}

func (b *Broadcaster) Publish(ctx context.Context, roomID string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel that receives the room's events. The channel is
// closed when cancel is called or when the subscriber falls behind.
func (b *Broadcaster) Subscribe(ctx context.Context, roomID string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel(roomID))
	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = pubsub.Close() })
	}

	out := make(chan domain.Event, b.buffer)
	go func() {
		defer close(out)
		defer cancel()
		for msg := range pubsub.Channel() {
			var ev domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.WithError(err).WithField("room", roomID).Warn("dropping malformed event")
				continue
			}
			select {
			case out <- ev:
			default:
				b.log.WithField("room", roomID).Warn("subscriber fell behind, closing stream")
				return
			}
		}
	}()
	return out, cancel, nil
}
