package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/cohortchat/internal/middleware"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

type GroupHandler struct {
	groups *service.GroupService
	logger *zap.Logger
}

func NewGroupHandler(groups *service.GroupService, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

type groupRequest struct {
	Name       string `json:"name" binding:"required"`
	Code       string `json:"code" binding:"required"`
	Institute  string `json:"institute"`
	Faculty    string `json:"faculty"`
	StudyYear  int    `json:"study_year"`
	Speciality string `json:"speciality"`
	Degree     string `json:"degree"`
}

func (r groupRequest) input() service.GroupInput {
	return service.GroupInput{
		Name:       r.Name,
		Code:       r.Code,
		Institute:  r.Institute,
		Faculty:    r.Faculty,
		StudyYear:  r.StudyYear,
		Speciality: r.Speciality,
		Degree:     r.Degree,
	}
}

type groupResponse struct {
	Group       *models.Group `json:"group"`
	DiplomaChat *models.Chat  `json:"diploma_chat"`
}

// Create handles POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	g, chat, err := h.groups.Create(c.Request.Context(), middleware.GetUserID(c), req.input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, groupResponse{Group: g, DiplomaChat: chat})
}

// Update handles PATCH /api/groups/:id
func (h *GroupHandler) Update(c *gin.Context) {
	groupID, ok := pathID(c, "group")
	if !ok {
		return
	}
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	g, chat, err := h.groups.Update(c.Request.Context(), middleware.GetUserID(c), groupID, req.input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, groupResponse{Group: g, DiplomaChat: chat})
}
