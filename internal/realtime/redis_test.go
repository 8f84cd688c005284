package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestChannelFor(t *testing.T) {
	id := uuid.MustParse("7d0f9a8e-6c1e-4a53-9f0b-1f1f3c2b4a10")
	if got := channelFor(id); got != "cohortchat:chat:7d0f9a8e-6c1e-4a53-9f0b-1f1f3c2b4a10" {
		t.Errorf("channelFor() = %q", got)
	}
	if got := evictChannelFor(id); got != "cohortchat:evict:7d0f9a8e-6c1e-4a53-9f0b-1f1f3c2b4a10" {
		t.Errorf("evictChannelFor() = %q", got)
	}
}

func TestRedisBroker_HandleRoutesByChannel(t *testing.T) {
	registry := NewRegistry()
	chat, removed, kept := uuid.New(), uuid.New(), uuid.New()
	gone, stay := &fakeSub{user: removed}, &fakeSub{user: kept}
	registry.Join(chat, gone)
	registry.Join(chat, stay)
	b := NewRedisBroker(nil, registry, zap.NewNop())

	b.handle(&redis.Message{Channel: evictChannelFor(chat), Payload: `["` + removed.String() + `"]`})
	b.handle(&redis.Message{Channel: evictChannelFor(chat), Payload: `not json`})
	b.handle(&redis.Message{Channel: "cohortchat:chat:nope", Payload: "x"})
	b.handle(&redis.Message{Channel: channelFor(chat), Payload: "after"})

	if gone.closed.Load() != 1 || gone.received() != 0 {
		t.Errorf("evicted session: closed=%d received=%d", gone.closed.Load(), gone.received())
	}
	if stay.received() != 1 {
		t.Errorf("remaining session received %d frames, want 1", stay.received())
	}
}

// Needs a running Redis, e.g. COHORTCHAT_TEST_REDIS_URL=redis://localhost:6379/15.
func TestRedisBroker_RoundTrip(t *testing.T) {
	url := os.Getenv("COHORTCHAT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("COHORTCHAT_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	registry := NewRegistry()
	chat := uuid.New()
	sub := &fakeSub{}
	registry.Join(chat, sub)

	broker := NewRedisBroker(client, registry, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- broker.Run(ctx) }()

	d := NewDispatcher(broker)
	deadline := time.Now().Add(3 * time.Second)
	for sub.received() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame never arrived through redis")
		}
		// Run may not have subscribed yet; publish until it has.
		if err := d.Broadcast(ctx, models.EventChatMessage, &models.Message{ChatID: chat, Text: "hi"}); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
