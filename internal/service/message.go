package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/policy"
	"github.com/lalith-99/cohortchat/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Broadcaster pushes an event about a stored message to everyone connected
// to its chat. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, kind models.EventKind, msg *models.Message) error
}

type MessageService struct {
	chats    repository.ChatRepository
	users    repository.UserRepository
	messages repository.MessageRepository
	bus      Broadcaster
	logger   *zap.Logger
}

func NewMessageService(store repository.Store, bus Broadcaster, logger *zap.Logger) *MessageService {
	return &MessageService{
		chats:    store.Chats,
		users:    store.Users,
		messages: store.Messages,
		bus:      bus,
		logger:   logger,
	}
}

type SendInput struct {
	ChatID uuid.UUID
	Text   string
	File   string
}

// Send stores a message and fans it out. The sender gets its own copy
// through the fan-out like everyone else.
func (s *MessageService) Send(ctx context.Context, actorID uuid.UUID, in SendInput) (*models.Message, error) {
	switch {
	case in.Text != "" && in.File != "":
		return nil, invalid("a message carries either text or a file, not both")
	case strings.TrimSpace(in.Text) == "" && in.File == "":
		return nil, invalid("text or file is required")
	}
	if in.ChatID == uuid.Nil {
		return nil, invalid("chat_id is required")
	}

	chat, err := s.chats.GetByID(ctx, in.ChatID)
	if err != nil {
		return nil, storage("get chat", err)
	}
	if chat == nil {
		return nil, notFound("chat")
	}
	u, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Evaluate(policy.Request{Actor: actorOf(u), Chat: chat, Action: policy.ActionSendMessage}); err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, repository.NewMessage{
		ChatID:   in.ChatID,
		SenderID: actorID,
		Text:     in.Text,
		File:     in.File,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("chat")
	}
	if err != nil {
		return nil, storage("create message", err)
	}

	s.publish(ctx, models.EventChatMessage, msg)
	return msg, nil
}

// SendText is the realtime path: a frame only carries text.
func (s *MessageService) SendText(ctx context.Context, actorID, chatID uuid.UUID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalid("text is required")
	}
	return s.Send(ctx, actorID, SendInput{ChatID: chatID, Text: text})
}

func (s *MessageService) publish(ctx context.Context, kind models.EventKind, msg *models.Message) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Broadcast(ctx, kind, msg); err != nil {
		s.logger.Warn("broadcast failed",
			zap.String("chat_id", msg.ChatID.String()),
			zap.Int64("number", msg.Number),
			zap.Error(err),
		)
	}
}

type ListInput struct {
	ChatID         uuid.UUID
	StartingNumber *int64
	PinnedOnly     bool
	Limit          int
}

// List returns a page of messages, highest number first. Only members can
// read a chat; for anyone else it does not exist.
func (s *MessageService) List(ctx context.Context, actorID uuid.UUID, in ListInput) ([]models.Message, error) {
	if in.ChatID == uuid.Nil {
		return nil, invalid("chat_id is required")
	}
	if in.StartingNumber != nil && *in.StartingNumber < 0 {
		return nil, invalid("starting_number must be non-negative")
	}
	ok, err := s.chats.IsMember(ctx, in.ChatID, actorID)
	if err != nil {
		return nil, storage("check membership", err)
	}
	if !ok {
		return nil, notFound("chat")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	msgs, err := s.messages.List(ctx, repository.MessageFilter{
		ChatID:         in.ChatID,
		PinnedOnly:     in.PinnedOnly,
		StartingNumber: in.StartingNumber,
		Limit:          limit,
	})
	if err != nil {
		return nil, storage("list messages", err)
	}
	return msgs, nil
}

// SetPinned pins or unpins a message and tells connected members.
func (s *MessageService) SetPinned(ctx context.Context, actorID uuid.UUID, messageID int64, pinned bool) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, storage("get message", err)
	}
	if msg == nil {
		return nil, notFound("message")
	}
	chat, err := s.chats.GetByID(ctx, msg.ChatID)
	if err != nil {
		return nil, storage("get chat", err)
	}
	if chat == nil {
		return nil, notFound("chat")
	}
	u, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}

	action, kind := policy.ActionPin, models.EventMessagePinned
	if !pinned {
		action, kind = policy.ActionUnpin, models.EventMessageUnpinned
	}
	if err := policy.Evaluate(policy.Request{Actor: actorOf(u), Chat: chat, Action: action}); err != nil {
		return nil, err
	}

	updated, err := s.messages.SetPinned(ctx, messageID, pinned)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("message")
	}
	if err != nil {
		return nil, storage("set pinned", err)
	}
	s.publish(ctx, kind, updated)
	return updated, nil
}
