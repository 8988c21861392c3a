package redisclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SignalRelay fans session signaling messages out over Redis pub/sub.
// Delivery is best effort: subscribers that are not connected miss messages.
type SignalRelay struct {
	client *redis.Client
}

func NewSignalRelay(client *redis.Client) *SignalRelay {
	return &SignalRelay{client: client}
}

func sessionChannel(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (r *SignalRelay) Publish(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	if err := r.client.Publish(ctx, sessionChannel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish session signal: %w", err)
	}
	return nil
}

// Subscribe delivers messages for sessionID until ctx is done. The returned
// channel is closed on exit.
func (r *SignalRelay) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan []byte, error) {
	sub := r.client.Subscribe(ctx, sessionChannel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe session signals: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
