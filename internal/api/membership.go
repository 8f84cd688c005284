package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/cohortchat/internal/middleware"
)

type membersRequest struct {
	Users []string `json:"users" binding:"required"`
}

// Leave handles POST /api/chats/:id/leave_chat
func (h *ChatHandler) Leave(c *gin.Context) {
	chatID, ok := pathID(c, "chat")
	if !ok {
		return
	}
	if err := h.chats.Leave(c.Request.Context(), middleware.GetUserID(c), chatID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// AddUsers handles POST /api/chats/:id/add_users
func (h *ChatHandler) AddUsers(c *gin.Context) {
	h.changeMembers(c, true)
}

// RemoveUsers handles POST /api/chats/:id/remove_users
func (h *ChatHandler) RemoveUsers(c *gin.Context) {
	h.changeMembers(c, false)
}

func (h *ChatHandler) changeMembers(c *gin.Context, add bool) {
	chatID, ok := pathID(c, "chat")
	if !ok {
		return
	}
	var req membersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ids, err := parseIDs(req.Users)
	if err != nil {
		badRequest(c, "users must be a list of user ids")
		return
	}

	ctx, actorID := c.Request.Context(), middleware.GetUserID(c)
	change := h.chats.RemoveUsers
	if add {
		change = h.chats.AddUsers
	}
	chat, err := change(ctx, actorID, chatID, ids)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.respondDetail(c, http.StatusOK, chat)
}
