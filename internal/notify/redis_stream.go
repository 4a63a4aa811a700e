package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// StreamAdder is the subset of the go-redis client used for stream delivery.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamDispatcher appends digests to a Redis stream consumed by the
// mail sender.
type RedisStreamDispatcher struct {
	client         StreamAdder
	stream         string
	adminRecipient string
	now            func() time.Time
}

// NewRedisStreamDispatcher builds a dispatcher writing to stream.
func NewRedisStreamDispatcher(client StreamAdder, stream, adminRecipient string) *RedisStreamDispatcher {
	return &RedisStreamDispatcher{client: client, stream: stream, adminRecipient: adminRecipient, now: time.Now}
}

func (d *RedisStreamDispatcher) Send(ctx context.Context, recipient string, digest []domain.TicketSummary) error {
	payload, err := json.Marshal(NewDigest(recipient, d.adminRecipient, digest, d.now()))
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]any{
			"recipient": recipient,
			"tickets":   len(digest),
			"payload":   payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", d.stream, err)
	}
	return nil
}
