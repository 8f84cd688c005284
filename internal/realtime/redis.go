package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "cohortchat:chat:"
	evictPrefix   = "cohortchat:evict:"
)

// RedisBroker fans frames out across processes. Publish sends to a Redis
// channel per chat; Run receives every chat channel and hands frames to the
// local registry, so each process only delivers to its own sessions.
// Evictions travel the same way on a parallel set of channels.
type RedisBroker struct {
	client   redis.UniversalClient
	registry *Registry
	logger   *zap.Logger
}

func NewRedisBroker(client redis.UniversalClient, registry *Registry, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, registry: registry, logger: logger}
}

func channelFor(chatID uuid.UUID) string {
	return channelPrefix + chatID.String()
}

func evictChannelFor(chatID uuid.UUID) string {
	return evictPrefix + chatID.String()
}

func (b *RedisBroker) Publish(ctx context.Context, chatID uuid.UUID, frame []byte) error {
	if err := b.client.Publish(ctx, channelFor(chatID), frame).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Evict asks every process to drop the users' sessions on chatID. The
// payload is a JSON array of user ids.
func (b *RedisBroker) Evict(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	payload, err := json.Marshal(userIDs)
	if err != nil {
		return fmt.Errorf("encode evict: %w", err)
	}
	if err := b.client.Publish(ctx, evictChannelFor(chatID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish evict: %w", err)
	}
	return nil
}

// Run blocks until ctx is cancelled or the subscription breaks.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*", evictPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.Info("redis fan-out subscribed",
		zap.String("pattern", channelPrefix+"*"),
		zap.String("evict_pattern", evictPrefix+"*"),
	)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(m)
		}
	}
}

func (b *RedisBroker) handle(m *redis.Message) {
	switch {
	case strings.HasPrefix(m.Channel, channelPrefix):
		chatID, err := uuid.Parse(strings.TrimPrefix(m.Channel, channelPrefix))
		if err != nil {
			b.logger.Warn("ignoring frame on unexpected channel", zap.String("channel", m.Channel))
			return
		}
		b.registry.Publish(chatID, []byte(m.Payload))
	case strings.HasPrefix(m.Channel, evictPrefix):
		chatID, err := uuid.Parse(strings.TrimPrefix(m.Channel, evictPrefix))
		if err != nil {
			b.logger.Warn("ignoring evict on unexpected channel", zap.String("channel", m.Channel))
			return
		}
		var userIDs []uuid.UUID
		if err := json.Unmarshal([]byte(m.Payload), &userIDs); err != nil {
			b.logger.Warn("ignoring malformed evict", zap.String("channel", m.Channel), zap.Error(err))
			return
		}
		b.registry.Evict(chatID, userIDs)
	default:
		b.logger.Warn("ignoring message on unexpected channel", zap.String("channel", m.Channel))
	}
}
