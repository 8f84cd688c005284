package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/middleware"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chats  *service.ChatService
	logger *zap.Logger
}

func NewChatHandler(chats *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// chatListItem is one row of GET /api/chats.
type chatListItem struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Photo       string          `json:"photo"`
	Type        models.ChatType `json:"type"`
	CreatorID   *uuid.UUID      `json:"creator_id"`
	Users       []uuid.UUID     `json:"users"`
	LastMessage *models.Message `json:"last_message"`
	CreatedAt   time.Time       `json:"created_at"`
}

// chatMember is the public part of a user shown inside a chat.
type chatMember struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Photo     string    `json:"photo"`
	IsTeacher bool      `json:"is_teacher"`
}

type chatDetail struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Photo     string          `json:"photo"`
	Type      models.ChatType `json:"type"`
	CreatorID *uuid.UUID      `json:"creator_id"`
	GroupID   *uuid.UUID      `json:"group_id"`
	Users     []chatMember    `json:"users"`
	CreatedAt time.Time       `json:"created_at"`
}

func toChatMember(u models.User) chatMember {
	return chatMember{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Photo:     u.Profile.Photo,
		IsTeacher: u.Profile.IsTeacher,
	}
}

// detail expands the member ids of chat into users.
func (h *ChatHandler) detail(c *gin.Context, chat *models.Chat) (*chatDetail, error) {
	users, err := h.chats.Members(c.Request.Context(), chat)
	if err != nil {
		return nil, err
	}
	members := make([]chatMember, 0, len(users))
	for _, u := range users {
		members = append(members, toChatMember(u))
	}
	return &chatDetail{
		ID:        chat.ID,
		Name:      chat.Name,
		Photo:     chat.Photo,
		Type:      chat.Type,
		CreatorID: chat.CreatorID,
		GroupID:   chat.GroupID,
		Users:     members,
		CreatedAt: chat.CreatedAt,
	}, nil
}

func (h *ChatHandler) respondDetail(c *gin.Context, status int, chat *models.Chat) {
	d, err := h.detail(c, chat)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(status, d)
}

// List handles GET /api/chats
func (h *ChatHandler) List(c *gin.Context) {
	summaries, err := h.chats.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	items := make([]chatListItem, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, chatListItem{
			ID:          s.ID,
			Name:        s.Name,
			Photo:       s.Photo,
			Type:        s.Type,
			CreatorID:   s.CreatorID,
			Users:       s.MemberIDs,
			LastMessage: s.LastMessage,
			CreatedAt:   s.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, items)
}

type createChatRequest struct {
	Type  models.ChatType `json:"type" binding:"required"`
	Name  string          `json:"name"`
	Photo string          `json:"photo"`
	Users []string        `json:"users"`
}

// Create handles POST /api/chats
func (h *ChatHandler) Create(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ids, err := parseIDs(req.Users)
	if err != nil {
		badRequest(c, "users must be a list of user ids")
		return
	}

	chat, err := h.chats.Create(c.Request.Context(), middleware.GetUserID(c), service.CreateChatInput{
		Type:    req.Type,
		Name:    req.Name,
		Photo:   req.Photo,
		UserIDs: ids,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.respondDetail(c, http.StatusCreated, chat)
}

// Get handles GET /api/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	chatID, ok := pathID(c, "chat")
	if !ok {
		return
	}
	chat, err := h.chats.Get(c.Request.Context(), middleware.GetUserID(c), chatID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.respondDetail(c, http.StatusOK, chat)
}

type updateChatRequest struct {
	Name  *string `json:"name"`
	Photo *string `json:"photo"`
}

// Update handles PATCH /api/chats/:id
func (h *ChatHandler) Update(c *gin.Context) {
	chatID, ok := pathID(c, "chat")
	if !ok {
		return
	}
	var req updateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chat, err := h.chats.Update(c.Request.Context(), middleware.GetUserID(c), chatID, repository.ChatUpdate{
		Name:  req.Name,
		Photo: req.Photo,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.respondDetail(c, http.StatusOK, chat)
}

// Delete handles DELETE /api/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	chatID, ok := pathID(c, "chat")
	if !ok {
		return
	}
	if err := h.chats.Delete(c.Request.Context(), middleware.GetUserID(c), chatID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PrivateChatExists handles GET /api/chats/private_chat_exists?user_id=
func (h *ChatHandler) PrivateChatExists(c *gin.Context) {
	otherID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		badRequest(c, "user_id is required")
		return
	}
	exists, err := h.chats.PrivateChatExists(c.Request.Context(), middleware.GetUserID(c), otherID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}
