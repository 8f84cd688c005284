package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
)

// Event is the frame pushed to clients: the message fields with a "type"
// tag next to them.
type Event struct {
	Type models.EventKind `json:"type"`
	models.Message
}

// Publisher moves an encoded frame to every session joined to a chat,
// wherever that session runs. Evict disconnects the given users from the
// chat in the same way.
type Publisher interface {
	Publish(ctx context.Context, chatID uuid.UUID, frame []byte) error
	Evict(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error
}

// LocalPublisher delivers straight to this process's registry.
type LocalPublisher struct {
	Registry *Registry
}

func (p LocalPublisher) Publish(ctx context.Context, chatID uuid.UUID, frame []byte) error {
	p.Registry.Publish(chatID, frame)
	return nil
}

func (p LocalPublisher) Evict(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	p.Registry.Evict(chatID, userIDs)
	return nil
}

// Dispatcher encodes stored messages as Events and publishes them.
type Dispatcher struct {
	pub Publisher
}

func NewDispatcher(pub Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

func (d *Dispatcher) Broadcast(ctx context.Context, kind models.EventKind, msg *models.Message) error {
	frame, err := json.Marshal(Event{Type: kind, Message: *msg})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := d.pub.Publish(ctx, msg.ChatID, frame); err != nil {
		return fmt.Errorf("publish to chat %s: %w", msg.ChatID, err)
	}
	return nil
}

// Evict disconnects sessions of users removed from a chat.
func (d *Dispatcher) Evict(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	if err := d.pub.Evict(ctx, chatID, userIDs); err != nil {
		return fmt.Errorf("evict from chat %s: %w", chatID, err)
	}
	return nil
}
