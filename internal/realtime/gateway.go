package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/cohortchat/internal/auth"
	"github.com/lalith-99/cohortchat/internal/metrics"
	"github.com/lalith-99/cohortchat/internal/models"
	"github.com/lalith-99/cohortchat/internal/policy"
	"github.com/lalith-99/cohortchat/internal/repository"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

const frameTimeout = 10 * time.Second

// MessageSender stores a text message and fans it out.
type MessageSender interface {
	SendText(ctx context.Context, actorID, chatID uuid.UUID, text string) (*models.Message, error)
}

type inboundFrame struct {
	Text string `json:"text"`
}

// Gateway upgrades GET /ws/chats/:id to a WebSocket session. Everything
// that can refuse a client (token, chat id, membership) is checked before
// the upgrade so the client gets a plain HTTP status.
type Gateway struct {
	registry *Registry
	chats    repository.ChatRepository
	users    repository.UserRepository
	sender   MessageSender
	secret   string
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewGateway(
	registry *Registry,
	store repository.Store,
	sender MessageSender,
	secret string,
	checkOrigin func(r *http.Request) bool,
	logger *zap.Logger,
) *Gateway {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Gateway{
		registry: registry,
		chats:    store.Chats,
		users:    store.Users,
		sender:   sender,
		secret:   secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// authenticate checks the token and that its user still exists.
func (g *Gateway) authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, service.ErrUnauthenticated
	}
	claims, err := auth.ParseToken(token, g.secret)
	if err != nil {
		return uuid.Nil, service.ErrUnauthenticated
	}
	u, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return uuid.Nil, err
	}
	if u == nil {
		return uuid.Nil, service.ErrUnauthenticated
	}
	return u.ID, nil
}

// Serve handles GET /ws/chats/:id. The token comes from the "token" query
// parameter or an Authorization: Bearer header.
//
// Why check everything before Upgrade? Until the handshake completes the
// client still speaks HTTP, so a refusal is a plain 401/400/404/403 it can
// act on. After the upgrade the only signal left is a close code.
func (g *Gateway) Serve(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.Query("token")
	if token == "" {
		token, _ = auth.BearerToken(c.GetHeader("Authorization"))
	}

	userID, err := g.authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		g.logger.Error("realtime auth lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	chatID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	chat, err := g.chats.GetByID(ctx, chatID)
	if err != nil {
		g.logger.Error("realtime chat lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if chat == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	if !chat.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not a member of this chat."})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s := newSession(conn, chatID, userID, token)
	s.advance(StateUnauthenticated, StateJoining)
	g.registry.Join(chatID, s)
	s.advance(StateJoining, StateJoined)

	log := g.logger.With(zap.String("chat_id", chatID.String()), zap.String("user_id", userID.String()))
	log.Debug("session joined", zap.Int("online", g.registry.Online(chatID)))

	go s.writePump()
	g.readPump(ctx, s, log)
}

// readPump runs until the client goes away or the session is closed. It
// always leaves the registry before the connection is released.
func (g *Gateway) readPump(ctx context.Context, s *Session, log *zap.Logger) {
	defer func() {
		g.registry.Leave(s.chatID, s)
		s.Close()
		log.Debug("session closed")
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if s.State() != StateJoined {
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil || in.Text == "" {
			continue
		}

		if !g.handleFrame(ctx, s, in, log) {
			return
		}
	}
}

// handleFrame stores one inbound message. It returns false when the session
// has to end.
func (g *Gateway) handleFrame(ctx context.Context, s *Session, in inboundFrame, log *zap.Logger) bool {
	fctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	if _, err := g.authenticate(fctx, s.token); err != nil {
		log.Info("session no longer authenticated", zap.Error(err))
		s.closeWith(websocket.ClosePolicyViolation, "authentication required")
		return false
	}

	_, err := g.sender.SendText(fctx, s.userID, s.chatID, in.Text)
	if err == nil {
		metrics.MessagesTotal.WithLabelValues("ws").Inc()
		return true
	}

	var (
		denial  *policy.Denial
		invalid *service.ValidationError
		missing *service.NotFoundError
	)
	switch {
	case errors.As(err, &denial):
		metrics.PolicyDenials.WithLabelValues(string(denial.Action), string(denial.Rule)).Inc()
		s.closeWith(websocket.ClosePolicyViolation, denial.Error())
		return false
	case errors.As(err, &missing):
		s.closeWith(websocket.CloseGoingAway, missing.Error())
		return false
	case errors.Is(err, service.ErrUnauthenticated):
		s.closeWith(websocket.ClosePolicyViolation, "authentication required")
		return false
	case errors.As(err, &invalid):
		return true
	}
	log.Error("failed to store realtime message", zap.Error(err))
	return true
}
