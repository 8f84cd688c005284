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

// ChatService runs chat management operations. Every mutation loads the
// chat and the actor and asks policy.Evaluate before touching storage.
type ChatService struct {
	chats   repository.ChatRepository
	users   repository.UserRepository
	evictor Evictor
	logger  *zap.Logger
}

// Evictor disconnects live sessions of users who are no longer members of
// a chat. Membership is only checked when a session joins or sends, so a
// removed user who stays silent would otherwise keep receiving fan-out.
type Evictor interface {
	Evict(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID) error
}

// NewChatService builds the service. evictor may be nil when no realtime
// layer is running.
func NewChatService(store repository.Store, evictor Evictor, logger *zap.Logger) *ChatService {
	return &ChatService{chats: store.Chats, users: store.Users, evictor: evictor, logger: logger}
}

// evict is best effort: the membership change is already stored.
func evict(ctx context.Context, evictor Evictor, logger *zap.Logger, chatID uuid.UUID, userIDs []uuid.UUID) {
	if evictor == nil || len(userIDs) == 0 {
		return
	}
	if err := evictor.Evict(ctx, chatID, userIDs); err != nil {
		logger.Warn("evict sessions failed",
			zap.String("chat_id", chatID.String()),
			zap.Int("users", len(userIDs)),
			zap.Error(err),
		)
	}
}

type CreateChatInput struct {
	Type    models.ChatType
	Name    string
	Photo   string
	UserIDs []uuid.UUID
}

// loadActor resolves the acting user. A token whose user is gone is treated
// as unauthenticated.
func loadActor(ctx context.Context, users repository.UserRepository, actorID uuid.UUID) (*models.User, error) {
	u, err := users.GetByID(ctx, actorID)
	if err != nil {
		return nil, storage("get user", err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

func actorOf(u *models.User) policy.Actor {
	return policy.Actor{ID: u.ID, IsTeacher: u.Profile.IsTeacher}
}

// load returns the actor and chat, or NotFound when the chat is missing.
func (s *ChatService) load(ctx context.Context, actorID, chatID uuid.UUID) (policy.Actor, *models.Chat, error) {
	u, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return policy.Actor{}, nil, err
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return policy.Actor{}, nil, storage("get chat", err)
	}
	if chat == nil {
		return policy.Actor{}, nil, notFound("chat")
	}
	return actorOf(u), chat, nil
}

// ensureUsers fails with NotFound unless every id is a registered user.
func (s *ChatService) ensureUsers(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return storage("list users", err)
	}
	if len(found) != len(ids) {
		return notFound("user")
	}
	return nil
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Create makes a private or group chat. The caller is always a member; a
// group chat's caller becomes its creator. Diploma chats are only created
// by GroupService.
func (s *ChatService) Create(ctx context.Context, actorID uuid.UUID, in CreateChatInput) (*models.Chat, error) {
	if !in.Type.Valid() {
		return nil, invalid("type must be one of private, group, diploma")
	}
	if in.Type == models.ChatDiploma {
		return nil, ErrDiplomaManaged
	}
	if _, err := loadActor(ctx, s.users, actorID); err != nil {
		return nil, err
	}

	members := unique(append([]uuid.UUID{actorID}, in.UserIDs...))
	nc := repository.NewChat{
		Name:      strings.TrimSpace(in.Name),
		Photo:     in.Photo,
		Type:      in.Type,
		MemberIDs: members,
	}

	switch in.Type {
	case models.ChatPrivate:
		if len(members) != 2 {
			return nil, invalid("a private chat needs exactly one other user")
		}
		if err := s.ensureUsers(ctx, members[1:]); err != nil {
			return nil, err
		}
		existing, err := s.chats.FindPrivate(ctx, members[0], members[1])
		if err != nil {
			return nil, storage("find private chat", err)
		}
		if existing != nil {
			return nil, ErrChatExists
		}
	case models.ChatGroup:
		if nc.Name == "" {
			return nil, invalid("name is required")
		}
		if err := s.ensureUsers(ctx, members[1:]); err != nil {
			return nil, err
		}
		nc.CreatorID = &actorID
	}

	chat, err := s.chats.Create(ctx, nc)
	if errors.Is(err, repository.ErrChatExists) {
		return nil, ErrChatExists
	}
	if err != nil {
		return nil, storage("create chat", err)
	}

	s.logger.Info("chat created",
		zap.String("chat_id", chat.ID.String()),
		zap.String("type", string(chat.Type)),
		zap.Int("members", len(chat.MemberIDs)),
	)
	return chat, nil
}

// Get returns a chat the actor belongs to. Chats the actor is not part of
// are reported as missing.
func (s *ChatService) Get(ctx context.Context, actorID, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, storage("get chat", err)
	}
	if chat == nil || !chat.HasMember(actorID) {
		return nil, notFound("chat")
	}
	return chat, nil
}

func (s *ChatService) List(ctx context.Context, actorID uuid.UUID) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListForMember(ctx, actorID)
	if err != nil {
		return nil, storage("list chats", err)
	}
	return chats, nil
}

func (s *ChatService) Update(ctx context.Context, actorID, chatID uuid.UUID, upd repository.ChatUpdate) (*models.Chat, error) {
	actor, chat, err := s.load(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Chat: chat, Action: policy.ActionEditMetadata}); err != nil {
		return nil, err
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, invalid("name cannot be empty")
		}
		upd.Name = &name
	}

	updated, err := s.chats.Update(ctx, chatID, upd)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("chat")
	}
	if err != nil {
		return nil, storage("update chat", err)
	}
	return updated, nil
}

func (s *ChatService) Delete(ctx context.Context, actorID, chatID uuid.UUID) error {
	actor, chat, err := s.load(ctx, actorID, chatID)
	if err != nil {
		return err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Chat: chat, Action: policy.ActionDelete}); err != nil {
		return err
	}
	if err := s.chats.Delete(ctx, chatID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("chat")
		}
		return storage("delete chat", err)
	}
	s.logger.Info("chat deleted", zap.String("chat_id", chatID.String()), zap.String("by", actorID.String()))
	evict(ctx, s.evictor, s.logger, chatID, chat.MemberIDs)
	return nil
}

func (s *ChatService) Leave(ctx context.Context, actorID, chatID uuid.UUID) error {
	actor, chat, err := s.load(ctx, actorID, chatID)
	if err != nil {
		return err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Chat: chat, Action: policy.ActionLeave}); err != nil {
		return err
	}
	if err := s.chats.RemoveMembers(ctx, chatID, []uuid.UUID{actorID}); err != nil {
		return storage("leave chat", err)
	}
	evict(ctx, s.evictor, s.logger, chatID, []uuid.UUID{actorID})
	return nil
}

// AddUsers adds every id to the chat. Unknown ids fail the whole call with
// NotFound; ids that are already members are ignored.
func (s *ChatService) AddUsers(ctx context.Context, actorID, chatID uuid.UUID, userIDs []uuid.UUID) (*models.Chat, error) {
	ids := unique(userIDs)
	if len(ids) == 0 {
		return nil, invalid("users is required")
	}
	actor, chat, err := s.load(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	if err := policy.Evaluate(policy.Request{Actor: actor, Chat: chat, Action: policy.ActionAddMembers}); err != nil {
		return nil, err
	}
	if err := s.ensureUsers(ctx, ids); err != nil {
		return nil, err
	}
	if err := s.chats.AddMembers(ctx, chatID, ids); err != nil {
		return nil, storage("add members", err)
	}
	return s.Get(ctx, actorID, chatID)
}

func (s *ChatService) RemoveUsers(ctx context.Context, actorID, chatID uuid.UUID, userIDs []uuid.UUID) (*models.Chat, error) {
	ids := unique(userIDs)
	if len(ids) == 0 {
		return nil, invalid("users is required")
	}
	actor, chat, err := s.load(ctx, actorID, chatID)
	if err != nil {
		return nil, err
	}
	req := policy.Request{Actor: actor, Chat: chat, Action: policy.ActionRemoveMembers, Targets: ids}
	if err := policy.Evaluate(req); err != nil {
		return nil, err
	}
	if err := s.chats.RemoveMembers(ctx, chatID, ids); err != nil {
		return nil, storage("remove members", err)
	}
	evict(ctx, s.evictor, s.logger, chatID, ids)
	return s.Get(ctx, actorID, chatID)
}

// PrivateChatExists reports whether the actor already has a private chat
// with otherID.
func (s *ChatService) PrivateChatExists(ctx context.Context, actorID, otherID uuid.UUID) (bool, error) {
	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return false, storage("get user", err)
	}
	if other == nil {
		return false, notFound("user")
	}
	chat, err := s.chats.FindPrivate(ctx, actorID, otherID)
	if err != nil {
		return false, storage("find private chat", err)
	}
	return chat != nil, nil
}

// Members returns the users of a chat the actor belongs to.
func (s *ChatService) Members(ctx context.Context, chat *models.Chat) ([]models.User, error) {
	users, err := s.users.ListByIDs(ctx, chat.MemberIDs)
	if err != nil {
		return nil, storage("list members", err)
	}
	return users, nil
}
