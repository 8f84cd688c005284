package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/cohortchat/internal/middleware"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	users  *service.UserService
	groups *service.GroupService
	logger *zap.Logger
}

func NewUserHandler(users *service.UserService, groups *service.GroupService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, groups: groups, logger: logger}
}

// Me handles GET /api/users/me
func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.users.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type updateMeRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Bio       *string `json:"bio"`
	Photo     *string `json:"photo"`
}

// UpdateMe handles PATCH /api/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.users.UpdateMe(c.Request.Context(), middleware.GetUserID(c), repository.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		Photo:     req.Photo,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Search handles GET /api/users?search=
func (h *UserHandler) Search(c *gin.Context) {
	users, err := h.users.Search(c.Request.Context(), c.Query("search"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]chatMember, 0, len(users))
	for _, u := range users {
		out = append(out, toChatMember(u))
	}
	c.JSON(http.StatusOK, out)
}

type changeGroupRequest struct {
	Code string `json:"code" binding:"required"`
}

// ChangeGroup handles POST /api/users/change_group
func (h *UserHandler) ChangeGroup(c *gin.Context) {
	var req changeGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	g, err := h.groups.Join(c.Request.Context(), middleware.GetUserID(c), req.Code)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": g})
}

