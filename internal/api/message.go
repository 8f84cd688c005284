package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/metrics"
	"github.com/lalith-99/cohortchat/internal/middleware"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messages *service.MessageService
	logger   *zap.Logger
}

func NewMessageHandler(messages *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

type createMessageRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
	Text   string `json:"text"`
	File   string `json:"file"`
}

// Create handles POST /api/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		badRequest(c, "invalid chat_id")
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), middleware.GetUserID(c), service.SendInput{
		ChatID: chatID,
		Text:   req.Text,
		File:   req.File,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	metrics.MessagesTotal.WithLabelValues("rest").Inc()
	c.JSON(http.StatusCreated, msg)
}

type messagePage struct {
	Results []models.Message `json:"results"`
	// NextStartingNumber continues the listing below the last result; null
	// once the oldest message has been returned.
	NextStartingNumber *int64 `json:"next_starting_number"`
}

// List handles GET /api/messages?chat_id=&starting_number=&pinned=&limit=
//
// Results come newest first. starting_number is inclusive.
func (h *MessageHandler) List(c *gin.Context) {
	chatID, err := uuid.Parse(c.Query("chat_id"))
	if err != nil {
		badRequest(c, "chat_id is required")
		return
	}
	in := service.ListInput{ChatID: chatID}

	if raw := c.Query("starting_number"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "starting_number must be an integer")
			return
		}
		in.StartingNumber = &n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		in.Limit = n
	}
	switch c.Query("pinned") {
	case "", "0", "false":
	case "1", "true":
		in.PinnedOnly = true
	default:
		badRequest(c, "pinned must be true or false")
		return
	}

	msgs, err := h.messages.List(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	page := messagePage{Results: msgs}
	if page.Results == nil {
		page.Results = []models.Message{}
	}
	if n := len(msgs); n > 0 && msgs[n-1].Number > 0 {
		next := msgs[n-1].Number - 1
		page.NextStartingNumber = &next
	}
	c.JSON(http.StatusOK, page)
}

// Pin handles POST /api/messages/:id/pin_message
func (h *MessageHandler) Pin(c *gin.Context) {
	h.setPinned(c, true)
}

// Unpin handles POST /api/messages/:id/unpin_message
func (h *MessageHandler) Unpin(c *gin.Context) {
	h.setPinned(c, false)
}

func (h *MessageHandler) setPinned(c *gin.Context, pinned bool) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || messageID <= 0 {
		badRequest(c, "invalid message id")
		return
	}
	msg, err := h.messages.SetPinned(c.Request.Context(), middleware.GetUserID(c), messageID, pinned)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
