package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/cohortchat/internal/auth"
	"github.com/lalith-99/cohortchat/internal/metrics"
	"github.com/lalith-99/cohortchat/internal/middleware"
	"github.com/lalith-99/cohortchat/internal/realtime"
	"github.com/lalith-99/cohortchat/internal/service"
	"go.uber.org/zap"
)

// RouterDeps is everything the HTTP surface needs. RateLimiter and Health
// are optional.
type RouterDeps struct {
	Chats    *service.ChatService
	Messages *service.MessageService
	Users    *service.UserService
	Groups   *service.GroupService
	Google   *auth.GoogleProvider
	Gateway  *realtime.Gateway

	Auth           AuthConfig
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	// Health reports whether storage is reachable.
	Health func(ctx context.Context) error

	// AccessLog turns on gin's request logger.
	AccessLog bool
	Logger    *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	if d.AccessLog {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery(), metrics.GinMiddleware(), middleware.CORS(d.AllowedOrigins))

	// Health and metrics are public so load balancers and scrapers can reach them.
	r.GET("/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/healthz", healthz(d.Health))
	r.GET("/metrics", metrics.Handler())

	// The gateway authenticates from the token query parameter itself.
	r.GET("/ws/chats/:id", d.Gateway.Serve)

	apiGroup := r.Group("/api")
	if d.RateLimiter != nil {
		apiGroup.Use(d.RateLimiter.Middleware())
	}

	authH := NewAuthHandler(d.Users, d.Google, d.Auth, d.Logger)
	public := apiGroup.Group("/auth")
	public.POST("/signup", authH.Signup)
	public.POST("/login", authH.Login)
	public.GET("/google/login", authH.GoogleLogin)
	public.GET("/google/callback", authH.GoogleCallback)

	private := apiGroup.Group("")
	private.Use(middleware.AuthMiddleware(d.Auth.JWTSecret))

	chats := NewChatHandler(d.Chats, d.Logger)
	private.GET("/chats", chats.List)
	private.POST("/chats", chats.Create)
	private.GET("/chats/private_chat_exists", chats.PrivateChatExists)
	private.GET("/chats/:id", chats.Get)
	private.PATCH("/chats/:id", chats.Update)
	private.DELETE("/chats/:id", chats.Delete)
	private.POST("/chats/:id/leave_chat", chats.Leave)
	private.POST("/chats/:id/add_users", chats.AddUsers)
	private.POST("/chats/:id/remove_users", chats.RemoveUsers)

	messages := NewMessageHandler(d.Messages, d.Logger)
	private.GET("/messages", messages.List)
	private.POST("/messages", messages.Create)
	private.POST("/messages/:id/pin_message", messages.Pin)
	private.POST("/messages/:id/unpin_message", messages.Unpin)

	users := NewUserHandler(d.Users, d.Groups, d.Logger)
	private.GET("/users", users.Search)
	private.GET("/users/me", users.Me)
	private.PATCH("/users/me", users.UpdateMe)
	private.POST("/users/change_group", users.ChangeGroup)

	groups := NewGroupHandler(d.Groups, d.Logger)
	private.POST("/groups", groups.Create)
	private.PATCH("/groups/:id", groups.Update)

	return r
}

func healthz(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
