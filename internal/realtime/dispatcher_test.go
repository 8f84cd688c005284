package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
)

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, chatID uuid.UUID, frame []byte) error {
	return errors.New("broker down")
}

func (failingPublisher) Evict(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	return errors.New("broker down")
}

func TestDispatcher_BroadcastFlatEvent(t *testing.T) {
	r := NewRegistry()
	chat := uuid.New()
	sub := &fakeSub{}
	r.Join(chat, sub)

	d := NewDispatcher(LocalPublisher{Registry: r})
	msg := &models.Message{ID: 7, ChatID: chat, SenderID: uuid.New(), Text: "hi", Number: 3, CreatedAt: time.Now()}
	if err := d.Broadcast(context.Background(), models.EventChatMessage, msg); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if sub.received() != 1 {
		t.Fatalf("received %d frames, want 1", sub.received())
	}

	var got map[string]any
	if err := json.Unmarshal(sub.frames[0], &got); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if got["type"] != string(models.EventChatMessage) {
		t.Errorf("type = %v, want chat_message", got["type"])
	}
	if got["number"] != float64(3) || got["text"] != "hi" {
		t.Errorf("frame = %v, want message fields at the top level", got)
	}
	if got["chat_id"] != chat.String() {
		t.Errorf("chat_id = %v, want %s", got["chat_id"], chat)
	}
}

func TestDispatcher_PublishError(t *testing.T) {
	d := NewDispatcher(failingPublisher{})
	err := d.Broadcast(context.Background(), models.EventMessagePinned, &models.Message{ChatID: uuid.New()})
	if err == nil {
		t.Fatal("Broadcast() error = nil, want publish error")
	}
}

func TestDispatcher_Evict(t *testing.T) {
	r := NewRegistry()
	chat, user := uuid.New(), uuid.New()
	sub := &fakeSub{user: user}
	r.Join(chat, sub)

	d := NewDispatcher(LocalPublisher{Registry: r})
	if err := d.Evict(context.Background(), chat, []uuid.UUID{user}); err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
	if r.Online(chat) != 0 || sub.closed.Load() != 1 {
		t.Errorf("Evict() left the session joined (online=%d closed=%d)", r.Online(chat), sub.closed.Load())
	}

	if err := NewDispatcher(failingPublisher{}).Evict(context.Background(), chat, []uuid.UUID{user}); err == nil {
		t.Error("Evict() error = nil, want publish error")
	}
}
