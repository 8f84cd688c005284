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

const diplomaChatPrefix = "Дипломний чат "

// GroupService manages academic groups and keeps each group's diploma chat
// in step with it: the chat exists, its members are the group's students
// plus the curator, and the curator is its creator.
type GroupService struct {
	groups  repository.GroupRepository
	chats   repository.ChatRepository
	users   repository.UserRepository
	evictor Evictor
	logger  *zap.Logger
}

func NewGroupService(store repository.Store, evictor Evictor, logger *zap.Logger) *GroupService {
	return &GroupService{groups: store.Groups, chats: store.Chats, users: store.Users, evictor: evictor, logger: logger}
}

type GroupInput struct {
	Name       string
	Code       string
	Institute  string
	Faculty    string
	StudyYear  int
	Speciality string
	Degree     string
}

func (in GroupInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return invalid("code is required")
	}
	if in.StudyYear < 0 {
		return invalid("study_year must be non-negative")
	}
	return nil
}

func (in GroupInput) apply(g *models.Group) {
	g.Name = strings.TrimSpace(in.Name)
	g.Code = strings.TrimSpace(in.Code)
	g.Institute = in.Institute
	g.Faculty = in.Faculty
	g.StudyYear = in.StudyYear
	g.Speciality = in.Speciality
	g.Degree = in.Degree
}

// Create makes a group curated by the acting teacher, along with its
// diploma chat.
func (s *GroupService) Create(ctx context.Context, actorID uuid.UUID, in GroupInput) (*models.Group, *models.Chat, error) {
	u, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, nil, err
	}
	if err := policy.EvaluateGroup(actorOf(u), nil); err != nil {
		return nil, nil, err
	}
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	var g models.Group
	in.apply(&g)
	g.CuratorID = &actorID

	created, err := s.groups.Create(ctx, g)
	if errors.Is(err, repository.ErrGroupCodeTaken) {
		return nil, nil, invalid("code is already in use")
	}
	if err != nil {
		return nil, nil, storage("create group", err)
	}

	chat, err := s.EnsureDiplomaChat(ctx, created)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("group created", zap.String("group_id", created.ID.String()), zap.String("chat_id", chat.ID.String()))
	return created, chat, nil
}

// Update edits a group's metadata. A group without a curator is adopted
// by the editing teacher.
func (s *GroupService) Update(ctx context.Context, actorID, groupID uuid.UUID, in GroupInput) (*models.Group, *models.Chat, error) {
	u, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, nil, err
	}
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, nil, storage("get group", err)
	}
	if g == nil {
		return nil, nil, notFound("group")
	}
	if err := policy.EvaluateGroup(actorOf(u), g.CuratorID); err != nil {
		return nil, nil, err
	}
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	in.apply(g)
	if g.CuratorID == nil {
		g.CuratorID = &actorID
	}
	updated, err := s.groups.Update(ctx, *g)
	if errors.Is(err, repository.ErrGroupCodeTaken) {
		return nil, nil, invalid("code is already in use")
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, notFound("group")
	}
	if err != nil {
		return nil, nil, storage("update group", err)
	}

	chat, err := s.EnsureDiplomaChat(ctx, updated)
	if err != nil {
		return nil, nil, err
	}
	return updated, chat, nil
}

// Join moves the actor into the group with the given code. The actor
// leaves the diploma chat of the previous group unless it created it.
// A teacher joining a group without a curator becomes its curator.
func (s *GroupService) Join(ctx context.Context, actorID uuid.UUID, code string) (*models.Group, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalid("code is required")
	}
	u, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	g, err := s.groups.GetByCode(ctx, code)
	if err != nil {
		return nil, storage("get group", err)
	}
	if g == nil {
		return nil, invalid("Invalid code")
	}

	if prev := u.Profile.GroupID; prev != nil && *prev != g.ID {
		if err := s.leaveDiploma(ctx, *prev, actorID); err != nil {
			return nil, err
		}
	}

	if err := s.users.SetGroup(ctx, actorID, g.ID); err != nil {
		return nil, storage("set group", err)
	}
	if u.Profile.IsTeacher && g.CuratorID == nil {
		g.CuratorID = &actorID
		if g, err = s.groups.Update(ctx, *g); err != nil {
			return nil, storage("set curator", err)
		}
	}

	if _, err := s.EnsureDiplomaChat(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GroupService) leaveDiploma(ctx context.Context, groupID, userID uuid.UUID) error {
	chat, err := s.chats.GetByGroup(ctx, groupID)
	if err != nil {
		return storage("get diploma chat", err)
	}
	if chat == nil || chat.IsCreator(userID) {
		return nil
	}
	if err := s.chats.RemoveMembers(ctx, chat.ID, []uuid.UUID{userID}); err != nil {
		return storage("leave diploma chat", err)
	}
	evict(ctx, s.evictor, s.logger, chat.ID, []uuid.UUID{userID})
	return nil
}

// EnsureDiplomaChat creates the group's diploma chat if needed and brings
// its name, creator and members in line with the group.
func (s *GroupService) EnsureDiplomaChat(ctx context.Context, g *models.Group) (*models.Chat, error) {
	members, err := s.groups.MemberIDs(ctx, g.ID)
	if err != nil {
		return nil, storage("list group members", err)
	}
	if g.CuratorID != nil {
		members = append(members, *g.CuratorID)
	}
	members = unique(members)
	name := diplomaChatPrefix + g.Name

	chat, err := s.chats.GetByGroup(ctx, g.ID)
	if err != nil {
		return nil, storage("get diploma chat", err)
	}
	if chat == nil {
		groupID := g.ID
		chat, err = s.chats.Create(ctx, repository.NewChat{
			Name:      name,
			Type:      models.ChatDiploma,
			CreatorID: g.CuratorID,
			GroupID:   &groupID,
			MemberIDs: members,
		})
		if err == nil {
			return chat, nil
		}
		if !errors.Is(err, repository.ErrChatExists) {
			return nil, storage("create diploma chat", err)
		}
		// Created concurrently; sync the existing one instead.
		chat, err = s.chats.GetByGroup(ctx, g.ID)
		if err != nil {
			return nil, storage("get diploma chat", err)
		}
		if chat == nil {
			return nil, storage("get diploma chat", repository.ErrNotFound)
		}
	}

	if g.CuratorID != nil && !chat.IsCreator(*g.CuratorID) {
		if err := s.chats.SetCreator(ctx, chat.ID, *g.CuratorID); err != nil {
			return nil, storage("set diploma creator", err)
		}
	}
	if chat.Name != name {
		if _, err := s.chats.Update(ctx, chat.ID, repository.ChatUpdate{Name: &name}); err != nil {
			return nil, storage("rename diploma chat", err)
		}
	}
	if err := s.chats.AddMembers(ctx, chat.ID, members); err != nil {
		return nil, storage("sync diploma members", err)
	}

	synced, err := s.chats.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, storage("get diploma chat", err)
	}
	return synced, nil
}
