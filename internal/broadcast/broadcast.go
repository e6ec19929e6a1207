package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/pkg/logger"
	"github.com/Onyemech/teemplot-sub006/pkg/redis"
)

// ChannelFor returns the pub/sub channel carrying capacity updates for a
// company
func ChannelFor(companyID string) string {
	return fmt.Sprintf("capacity:%s", companyID)
}

// Broadcaster pushes capacity snapshots out to whoever is listening.
// Implementations must not block the caller on slow consumers.
type Broadcaster interface {
	BroadcastCapacity(ctx context.Context, snap domain.CapacitySnapshot)
}

// RedisPublisher broadcasts snapshots over Redis pub/sub so every server
// instance can fan them out to its own stream subscribers
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher on the given client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// BroadcastCapacity publishes the snapshot. Broadcast is best-effort: a
// publish failure is logged and swallowed, never surfaced to the admission
// path.
func (p *RedisPublisher) BroadcastCapacity(ctx context.Context, snap domain.CapacitySnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to marshal capacity snapshot", zap.Error(err))
		return
	}

	if err := p.client.Publish(ctx, ChannelFor(snap.CompanyID), payload); err != nil {
		logger.WarnCtx(ctx, "failed to publish capacity update",
			zap.String("company_id", snap.CompanyID),
			zap.Error(err),
		)
	}
}

// NopBroadcaster discards snapshots. Used when Redis is not configured.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastCapacity(ctx context.Context, snap domain.CapacitySnapshot) {}

// Source delivers raw messages for a channel. The returned stop function
// tears the subscription down and closes the message channel.
type Source interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// RedisSource adapts the Redis client into a Source for the hub
type RedisSource struct {
	client *redis.Client
}

// NewRedisSource creates a source on the given client
func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client}
}

// Subscribe opens a Redis subscription and pumps its payloads into a channel
func (s *RedisSource) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	done := make(chan struct{})

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		_ = pubsub.Close()
	}
	return out, stop, nil
}
